package amqp

// internalRPCJob is a unit of mutation work the engine must run on the
// single driver task that owns Connection/Channel state: the Connection
// enqueues one job per decoded inbound frame, and one to shut down after
// a hard protocol error. Running these jobs on one task avoids recursive
// locking between inbound frame handlers and outbound sends.
type internalRPCJob func()

// InternalRPC is a single-consumer queue of jobs drained by the
// Connection's driver task. Any task -- an inbound frame handler, a
// user API call, a heartbeat timer -- may enqueue a job; only the
// driver task ever runs one.
type InternalRPC struct {
	jobs chan internalRPCJob
	done chan struct{}
}

// NewInternalRPC creates an InternalRPC with the given buffer depth.
func NewInternalRPC(buffer int) *InternalRPC {
	return &InternalRPC{
		jobs: make(chan internalRPCJob, buffer),
		done: make(chan struct{}),
	}
}

// Enqueue schedules job to run on the driver task. It never blocks the
// caller on job's own execution, only (briefly) on channel capacity.
func (r *InternalRPC) Enqueue(job internalRPCJob) {
	select {
	case r.jobs <- job:
	case <-r.done:
	}
}

// Run drains jobs until Stop is called. It is the body of the driver
// task's internal-RPC loop, typically run on its own Executor.Spawn
// goroutine alongside the reader loop.
func (r *InternalRPC) Run() {
	for {
		select {
		case job := <-r.jobs:
			job()
		case <-r.done:
			// Drain anything already enqueued before giving up, so a
			// close job queued just before shutdown still executes.
			for {
				select {
				case job := <-r.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

// Stop ends the Run loop.
func (r *InternalRPC) Stop() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}
