package async

import (
	"sync"

	"github.com/go-sif/dataflow/errors"
	"github.com/go-sif/dataflow/internal/util"
	"github.com/hashicorp/go-multierror"
)

// Pool is a fixed-size pool of goroutines draining a shared FIFO task queue.
// Tasks may enqueue further tasks. A panic within a task is recovered and
// reported by the next LoopUntilEmpty, once the pool is quiescent.
type Pool struct {
	size      int
	lock      sync.Mutex
	taskReady *sync.Cond // signalled when a task is queued or the pool closes
	idle      *sync.Cond // broadcast when no task is queued or running
	queue     []func()
	running   int
	closed    bool
	errs      *multierror.Error
	workers   sync.WaitGroup
}

// NewPool starts a Pool of size worker goroutines
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{size: size}
	p.taskReady = sync.NewCond(&p.lock)
	p.idle = sync.NewCond(&p.lock)
	p.workers.Add(size)
	for i := 0; i < size; i++ {
		go p.work()
	}
	return p
}

// Size returns the number of worker goroutines in this Pool
func (p *Pool) Size() int {
	return p.size
}

// Enqueue appends a task to the queue, to be run by the next idle worker
func (p *Pool) Enqueue(task func()) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return errors.PoolClosedError{}
	}
	p.queue = append(p.queue, task)
	p.taskReady.Signal()
	return nil
}

// LoopUntilEmpty blocks until no tasks remain queued or running, then returns
// any failures collected from tasks since the previous call
func (p *Pool) LoopUntilEmpty() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	for len(p.queue) > 0 || p.running > 0 {
		p.idle.Wait()
	}
	errs := p.errs
	p.errs = nil
	if errs != nil {
		errs.ErrorFormat = formatTaskErrors
	}
	return errs.ErrorOrNil()
}

// Close waits for all tasks to finish, then stops the worker goroutines
func (p *Pool) Close() error {
	err := p.LoopUntilEmpty()
	p.lock.Lock()
	p.closed = true
	p.taskReady.Broadcast()
	p.lock.Unlock()
	p.workers.Wait()
	return err
}

func (p *Pool) work() {
	defer p.workers.Done()
	for {
		p.lock.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.taskReady.Wait()
		}
		if len(p.queue) == 0 {
			p.lock.Unlock()
			return
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.running++
		p.lock.Unlock()

		err := util.RecoverTask(task)

		p.lock.Lock()
		if err != nil {
			p.errs = multierror.Append(p.errs, err)
		}
		p.running--
		if p.running == 0 && len(p.queue) == 0 {
			p.idle.Broadcast()
		}
		p.lock.Unlock()
	}
}

func formatTaskErrors(errs []error) string {
	return "Thread pool tasks failed:\n" + util.FormatMultiError(errs)
}
