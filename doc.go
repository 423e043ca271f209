// Copyright 2017 Aleksandr Demakin. All rights reserved.

// Package rtbus is the synchronization and messaging substrate for a
// multi-process robot control stack. It implements the following mechanisms:
//	robust interprocess mutexes and lock guards (sync)
//	typed broadcast message queues and the queue registry (queue)
//	csv logging of queue traffic (logging)
//	live queue monitoring (webdash)
//	motion-profile actions driven through the bus (actions)
// The sync package survives the death of a lock holder: the next acquirer
// is told that the previous owner died instead of deadlocking forever.
// You can find usage examples in test files of the subpackages.
package rtbus
