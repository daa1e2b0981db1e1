package client

import (
	"runtime"
	"sync"
	"time"

	"github.com/juju/errors"

	"github.com/tabletstore/client-go/model/pkg/kvrpcpb"
	"github.com/tabletstore/client-go/util/log"
)

type Task interface {
	Do()
	Wait() error
	Reset()
}

func (c *Client) Submit(t Task) error {
	index := time.Now().UnixNano() % int64(len(c.taskQueues))
	select {
	case <-c.ctx.Done():
		return ErrClientClosed
	case c.taskQueues[index] <- t:
		return nil
	}
}

func (c *Client) workMonitor() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case index := <-c.workRecover:
			if index < 0 {
				return
			}
			c.wg.Add(1)
			go c.work(index, c.taskQueues[index])
		}
	}
}

func (c *Client) work(index int, queue chan Task) {
	defer func() {
		c.wg.Done()
		if r := recover(); r != nil {
			fn := func() string {
				n := 10000
				var trace []byte
				for i := 0; i < 5; i++ {
					trace = make([]byte, n)
					nbytes := runtime.Stack(trace, false)
					if nbytes < len(trace) {
						return string(trace[:nbytes])
					}
					n *= 2
				}
				return string(trace)
			}
			select {
			case <-c.ctx.Done():
				return
			case c.workRecover <- index:
			}

			log.Error("panic:%v", r)
			log.Error("Stack: %s", fn())
			return
		}
	}()
	for {
		select {
		case <-c.ctx.Done():
			return
		case t := <-queue:
			if t == nil {
				return
			}
			t.Do()
		}
	}
}

// writeTask sends one batch request to one tablet server.
type writeTask struct {
	c            *Client
	addr         string
	req          *kvrpcpb.BatchRequest
	writeTimeout time.Duration
	done         chan error
	resp         *kvrpcpb.BatchResponse

	// abandoned is set when Wait gave up on the task while its Do may
	// still be running; such a task must never return to the pool,
	// or Reset would race the in-flight Do and a recycled task could
	// deliver a stale completion. Written and read only by the waiter.
	abandoned bool
}

func (t *writeTask) init(c *Client, addr string, req *kvrpcpb.BatchRequest, writeTimeout time.Duration) *writeTask {
	if t == nil {
		return t
	}
	t.c = c
	t.addr = addr
	t.req = req
	t.writeTimeout = writeTimeout
	return t
}

func (t *writeTask) Do() {
	resp, err := t.c.kvCli.Batch(t.addr, t.req, t.writeTimeout, t.c.config.ReadTimeout)
	if err != nil {
		t.done <- err
		return
	}
	t.resp = resp
	t.done <- nil
}

func (t *writeTask) Wait() error {
	select {
	case <-t.c.ctx.Done():
		t.abandoned = true
		return errors.Annotate(ErrClientClosed, "batch write")
	case err := <-t.done:
		return err
	}
}

func (t *writeTask) Reset() {
	if t == nil {
		return
	}
	*t = writeTask{done: make(chan error, 1)}
}

var writeTaskPool = &sync.Pool{
	New: func() interface{} {
		return &writeTask{done: make(chan error, 1)}
	},
}

func getWriteTask() *writeTask {
	return writeTaskPool.Get().(*writeTask)
}

func putWriteTask(task *writeTask) {
	if task == nil || task.abandoned {
		return
	}
	task.Reset()
	writeTaskPool.Put(task)
}
