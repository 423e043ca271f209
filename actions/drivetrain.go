// Copyright 2017 Aleksandr Demakin. All rights reserved.

// Package actions contains multi-step robot maneuvers composed from goal
// and status messages. Actions are pure consumers of the message bus: they
// talk to the control loops only through queues and never reach into a
// queue's internals.
package actions

import (
	"math"

	"github.com/nxgtw/go-rtbus/queue"
)

// DrivetrainProperties bound the motion profiles an action may request.
type DrivetrainProperties struct {
	MaxAngularVelocity     float64
	MaxAngularAcceleration float64
	MaxForwardVelocity     float64
	MaxForwardAcceleration float64
	WheelbaseRadius        float64
}

// ProfileConstraints bound one degree of freedom of a motion profile.
type ProfileConstraints struct {
	MaxVelocity     float64
	MaxAcceleration float64
}

// DrivetrainGoal commands the drivetrain loop to profiled position goals.
type DrivetrainGoal struct {
	LinearConstraints  ProfileConstraints
	AngularConstraints ProfileConstraints
	LeftGoal           float64
	RightGoal          float64
	LeftVelocityGoal   float64
	RightVelocityGoal  float64
}

// DrivetrainStatus is the drivetrain loop's estimate of where it is.
type DrivetrainStatus struct {
	EstimatedLeftPosition     float64
	EstimatedRightPosition    float64
	EstimatedLeftVelocity     float64
	EstimatedRightVelocity    float64
	ProfiledLeftPositionGoal  float64
	ProfiledRightPositionGoal float64
}

// GoalQueue and StatusQueue are the bus endpoints a drivetrain action uses.
type (
	GoalQueue   = queue.MessageQueue[DrivetrainGoal]
	StatusQueue = queue.MessageQueue[DrivetrainStatus]
)

const (
	defaultThresholdDistance = 2e-2
	defaultThresholdVelocity = 1e-2
)

// DrivetrainAction drives the robot to a position goal. Call Update once
// per control cycle; it keeps publishing the goal until the status queue
// reports the robot within the thresholds, then reports completion.
type DrivetrainAction struct {
	properties        DrivetrainProperties
	goalLeft          float64
	goalRight         float64
	goalVelocityLeft  float64
	goalVelocityRight float64
	thresholdDistance float64
	thresholdVelocity float64
	goalQueue         *GoalQueue
	statusQueue       *StatusQueue
}

// DriveStraight creates an action driving the given distance ahead of the
// robot's current estimated position.
func DriveStraight(distance float64, properties DrivetrainProperties, gq *GoalQueue, sq *StatusQueue) *DrivetrainAction {
	leftOffset, rightOffset := currentOffsets(sq)
	return &DrivetrainAction{
		properties:        properties,
		goalLeft:          leftOffset + distance,
		goalRight:         rightOffset + distance,
		thresholdDistance: defaultThresholdDistance,
		thresholdVelocity: defaultThresholdVelocity,
		goalQueue:         gq,
		statusQueue:       sq,
	}
}

// PointTurn creates an action turning in place by the given angle.
func PointTurn(angle float64, properties DrivetrainProperties, gq *GoalQueue, sq *StatusQueue) *DrivetrainAction {
	leftOffset, rightOffset := currentOffsets(sq)
	distance := angle * properties.WheelbaseRadius
	return &DrivetrainAction{
		properties:        properties,
		goalLeft:          leftOffset - distance,
		goalRight:         rightOffset + distance,
		thresholdDistance: defaultThresholdDistance,
		thresholdVelocity: defaultThresholdVelocity,
		goalQueue:         gq,
		statusQueue:       sq,
	}
}

// SwoopTurn creates an action driving forward while turning, covering the
// given distance and sweeping the given angle in one arc.
func SwoopTurn(distance, angle float64, properties DrivetrainProperties, gq *GoalQueue, sq *StatusQueue) *DrivetrainAction {
	leftOffset, rightOffset := currentOffsets(sq)
	rightDistance := distance + angle*properties.WheelbaseRadius
	leftDistance := distance - angle*properties.WheelbaseRadius
	arc := arcConstraints(leftDistance, rightDistance, properties)
	return &DrivetrainAction{
		properties:        arc,
		goalLeft:          leftOffset + rightDistance,
		goalRight:         rightOffset + leftDistance,
		thresholdDistance: defaultThresholdDistance,
		thresholdVelocity: defaultThresholdVelocity,
		goalQueue:         gq,
		statusQueue:       sq,
	}
}

// Update runs one cycle of the action. It returns true while the action is
// still driving towards its goal, and false once the goal is reached.
func (a *DrivetrainAction) Update() bool {
	if !a.IsTerminated() {
		a.SendMessage()
		return true
	}
	return false
}

// SendMessage publishes the current goal on the goal queue.
func (a *DrivetrainAction) SendMessage() {
	a.goalQueue.WriteMessage(DrivetrainGoal{
		AngularConstraints: ProfileConstraints{
			MaxVelocity:     a.properties.MaxAngularVelocity,
			MaxAcceleration: a.properties.MaxAngularAcceleration,
		},
		LinearConstraints: ProfileConstraints{
			MaxVelocity:     a.properties.MaxForwardVelocity,
			MaxAcceleration: a.properties.MaxForwardAcceleration,
		},
		LeftGoal:          a.goalLeft,
		RightGoal:         a.goalRight,
		LeftVelocityGoal:  a.goalVelocityLeft,
		RightVelocityGoal: a.goalVelocityRight,
	})
}

// IsTerminated returns true once the latest status reports positions and
// velocities within the action's thresholds. With no status published yet
// the action is not terminated.
func (a *DrivetrainAction) IsTerminated() bool {
	status, ok := a.statusQueue.MakeReader().ReadLastMessage()
	if !ok {
		return false
	}
	return math.Abs(status.EstimatedLeftPosition-a.goalLeft) < a.thresholdDistance &&
		math.Abs(status.EstimatedRightPosition-a.goalRight) < a.thresholdDistance &&
		math.Abs(status.EstimatedLeftVelocity-a.goalVelocityLeft) < a.thresholdVelocity &&
		math.Abs(status.EstimatedRightVelocity-a.goalVelocityRight) < a.thresholdVelocity
}

// DriveSCurveAction drives an s-curve: an arc one way for the first half,
// then the mirrored arc, ending the given distance ahead with the original
// heading restored.
type DriveSCurveAction struct {
	DrivetrainAction
	endLeft       float64
	endRight      float64
	finishedFirst bool
}

// DriveSCurve creates an s-curve action from the robot's current estimated
// position.
func DriveSCurve(distance, angle float64, properties DrivetrainProperties, gq *GoalQueue, sq *StatusQueue) *DriveSCurveAction {
	leftOffset, rightOffset := currentOffsets(sq)
	rightDistance := distance/2 + angle*properties.WheelbaseRadius
	leftDistance := distance/2 - angle*properties.WheelbaseRadius
	arc := arcConstraints(leftDistance, rightDistance, properties)
	return &DriveSCurveAction{
		DrivetrainAction: DrivetrainAction{
			properties:        arc,
			goalLeft:          leftOffset + leftDistance,
			goalRight:         rightOffset + rightDistance,
			thresholdDistance: defaultThresholdDistance,
			thresholdVelocity: defaultThresholdVelocity,
			goalQueue:         gq,
			statusQueue:       sq,
		},
		endLeft:  leftOffset + distance,
		endRight: rightOffset + distance,
	}
}

// Update runs one cycle of the action.
func (a *DriveSCurveAction) Update() bool {
	if !a.finishedFirst {
		a.SendMessage()
		if a.finishedFirstArc() {
			a.goalLeft = a.endLeft
			a.goalRight = a.endRight
			a.goalVelocityLeft = 0
			a.goalVelocityRight = 0
			a.finishedFirst = true
		}
		return true
	}
	if !a.IsTerminated() {
		a.SendMessage()
		return true
	}
	return false
}

// finishedFirstArc checks the profiled goal instead of the position
// estimate: the first half of the curve is open-loop.
func (a *DriveSCurveAction) finishedFirstArc() bool {
	status, ok := a.statusQueue.MakeReader().ReadLastMessage()
	if !ok {
		return false
	}
	return math.Abs(status.ProfiledLeftPositionGoal-a.goalLeft) < 1e-4 &&
		math.Abs(status.ProfiledRightPositionGoal-a.goalRight) < 1e-4
}

func currentOffsets(sq *StatusQueue) (left, right float64) {
	if status, ok := sq.MakeReader().ReadLastMessage(); ok {
		return status.EstimatedLeftPosition, status.EstimatedRightPosition
	}
	return 0, 0
}

// arcConstraints scales the forward and angular limits so that the faster
// side of an asymmetric arc runs at the forward limits while the slower
// side keeps proportion.
func arcConstraints(leftDistance, rightDistance float64, properties DrivetrainProperties) DrivetrainProperties {
	var rvMax, raMax, lvMax, laMax float64
	if math.Abs(rightDistance) > math.Abs(leftDistance) {
		ratio := math.Abs(rightDistance / leftDistance)
		rvMax = properties.MaxForwardVelocity
		raMax = properties.MaxForwardAcceleration
		lvMax = rvMax / ratio
		laMax = raMax / ratio
	} else {
		ratio := math.Abs(leftDistance / rightDistance)
		lvMax = properties.MaxForwardVelocity
		laMax = properties.MaxForwardAcceleration
		rvMax = lvMax / ratio
		raMax = laMax / ratio
	}
	return DrivetrainProperties{
		MaxAngularVelocity:     math.Abs(rvMax-lvMax) / properties.WheelbaseRadius / 2,
		MaxAngularAcceleration: math.Abs(raMax-laMax) / properties.WheelbaseRadius / 2,
		MaxForwardVelocity:     (rvMax + lvMax) / 2,
		MaxForwardAcceleration: (raMax + laMax) / 2,
		WheelbaseRadius:        properties.WheelbaseRadius,
	}
}
