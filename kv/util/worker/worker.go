package worker

import (
	"sync"

	"github.com/dgryski/go-farm"
	"github.com/ngaut/log"
)

type TaskStop struct{}

type Task interface{}

type Worker struct {
	name     string
	sender   chan<- Task
	receiver <-chan Task
	wg       *sync.WaitGroup
}

type TaskHandler interface {
	Handle(t Task)
}

type Starter interface {
	Start()
}

func (w *Worker) Start(handler TaskHandler) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if s, ok := handler.(Starter); ok {
			s.Start()
		}
		for {
			task := <-w.receiver
			if _, ok := task.(TaskStop); ok {
				log.Debugf("worker %s stopped", w.name)
				return
			}
			handler.Handle(task)
		}
	}()
}

func (w *Worker) Sender() chan<- Task {
	return w.sender
}

func (w *Worker) Stop() {
	w.sender <- TaskStop{}
}

const defaultWorkerCapacity = 128

func NewWorker(name string, wg *sync.WaitGroup) *Worker {
	ch := make(chan Task, defaultWorkerCapacity)
	return &Worker{
		sender:   (chan<- Task)(ch),
		receiver: (<-chan Task)(ch),
		name:     name,
		wg:       wg,
	}
}

// Pool runs a fixed set of workers. Tasks submitted with the same shard key always reach the same worker, in
// submission order, so their handling never overlaps.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool starts n workers, worker i handling its tasks with newHandler(i).
func NewPool(name string, n int, newHandler func(i int) TaskHandler) *Pool {
	p := &Pool{workers: make([]*Worker, n)}
	for i := range p.workers {
		p.workers[i] = NewWorker(name, &p.wg)
		p.workers[i].Start(newHandler(i))
	}
	return p
}

// Shard picks the worker of key among n.
func Shard(key []byte, n int) int {
	return int(farm.Fingerprint64(key) % uint64(n))
}

// Submit queues t on the worker owning shardKey. It blocks while that worker's queue is full.
func (p *Pool) Submit(shardKey []byte, t Task) {
	p.workers[Shard(shardKey, len(p.workers))].Sender() <- t
}

// Stop lets every worker drain its queue and waits for them to exit.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()
}
