/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package kafka

import (
	"context"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/sitedata/bgpview/core"
)

// workerState is the handoff protocol state between the owner task and the
// background publisher.
type workerState uint8

const (
	workerIdle workerState = iota
	workerRunning
	workerShutdown
)

// Reconnect backoff bounds for transport failures.
const (
	reconnectInitialDelay = 10 * time.Second
	reconnectMaxDelay     = 180 * time.Second
	reconnectMaxAttempts  = 5
)

// Shutdown drain bounds.
const (
	drainIterations = 12
	drainWait       = 5 * time.Second
)

// frame is one message bound for a topic.
type frame struct {
	topic   string
	key     []byte
	payload []byte
}

// job is the unit handed from the owner task to the worker. Ownership of the
// contained frames transfers with the handoff: the owner must not touch them
// afterwards.
type job struct {
	frames []frame
}

// worker publishes frames for one (identity, topic-group) in the background.
// The owner task and the worker synchronize through mu/cond protecting
// {state, job}.
type worker struct {
	mu   sync.Mutex
	cond *sync.Cond

	state workerState
	job   *job

	brokers   []string
	writers   map[string]*kafkago.Writer
	connected bool

	wg sync.WaitGroup
}

func newWorker(brokers []string) *worker {
	w := &worker{
		brokers: brokers,
		writers: make(map[string]*kafkago.Writer),
		state:   workerIdle,
	}
	w.cond = sync.NewCond(&w.mu)
	w.wg.Add(1)
	go w.run()
	return w
}

// submit hands a job to the worker, blocking until the previous job (if any)
// has finished publishing.
func (w *worker) submit(j *job) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.state == workerRunning {
		w.cond.Wait()
	}
	if w.state == workerShutdown {
		return core.ErrTransport
	}
	w.job = j
	w.state = workerRunning
	w.cond.Broadcast()
	return nil
}

// shutdown stops the worker, letting it drain a pending job for a bounded
// time.
func (w *worker) shutdown() {
	w.mu.Lock()
	for i := 0; w.state == workerRunning && i < drainIterations; i++ {
		w.mu.Unlock()
		time.Sleep(drainWait)
		w.mu.Lock()
	}
	w.state = workerShutdown
	w.cond.Broadcast()
	w.mu.Unlock()
	w.wg.Wait()

	for _, writer := range w.writers {
		writer.Close()
	}
}

func (w *worker) run() {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		for w.state == workerIdle {
			w.cond.Wait()
		}
		if w.state == workerShutdown {
			w.mu.Unlock()
			return
		}
		j := w.job
		w.job = nil
		w.mu.Unlock()

		w.publish(j)

		w.mu.Lock()
		if w.state != workerShutdown {
			w.state = workerIdle
		}
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

// publish writes every frame of the job, reconnecting with exponential
// backoff on transport failures. After reconnectMaxAttempts the frame is
// dropped and the job abandoned; the next job starts fresh.
func (w *worker) publish(j *job) {
	for _, f := range j.frames {
		delay := reconnectInitialDelay
		sent := false
		for attempt := 0; attempt < reconnectMaxAttempts; attempt++ {
			err := w.write(f)
			if err == nil {
				sent = true
				break
			}
			w.connected = false
			core.LogWarn("KafkaWorker", "publish to ", f.topic, " failed: ", err, ", retrying in ", delay)
			time.Sleep(delay)
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
		}
		if !sent {
			core.LogError("KafkaWorker", "giving up on frame for ", f.topic)
			return
		}
		w.connected = true
	}
}

func (w *worker) write(f frame) error {
	writer, ok := w.writers[f.topic]
	if !ok {
		writer = &kafkago.Writer{
			Addr:         kafkago.TCP(w.brokers...),
			Topic:        f.topic,
			Balancer:     &kafkago.LeastBytes{},
			RequiredAcks: kafkago.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		}
		w.writers[f.topic] = writer
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return writer.WriteMessages(ctx, kafkago.Message{Key: f.key, Value: f.payload})
}
