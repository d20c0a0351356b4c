package main

import (
	"image"
	"os"
	"path/filepath"
	"sync"

	commons "github.com/bbernhard/scenegraph-playground/src/commons"
	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/bbernhard/scenegraph-playground/src/features"
	"github.com/bbernhard/scenegraph-playground/src/render"
	"github.com/bbernhard/scenegraph-playground/src/scenegraph"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const internalErrorMessage = "Couldn't process request"

// Job holds the attributes needed to perform unit of work.
type Job struct {
	PredictionRequest datastructures.PredictionRequest
}

// Predictor builds the scene graph of one image. Implementations own
// native sessions and are used by a single worker.
type Predictor interface {
	Process(jobID string, img image.Image, threshold float32) (*datastructures.SceneGraph, error)
	Close()
}

// PredictorFactory creates the sessions of one worker.
type PredictorFactory func() (Predictor, error)

// Handler turns a prediction request into a stored result.
type Handler struct {
	Store     *commons.JobStore
	Layout    commons.Layout
	ModelInfo datastructures.ModelInfo
}

// Handle runs predictor on the uploaded image of req, renders the outputs
// and stores the result. Failures are stored as well.
func (h *Handler) Handle(predictor Predictor, req datastructures.PredictionRequest) datastructures.PredictionResult {
	logger := log.WithField("job", req.Uuid)
	result := datastructures.PredictionResult{JobID: req.Uuid, Created: req.Created}

	img, err := features.LoadImage(req.Filename)
	if err != nil {
		return h.failed(logger, result, err)
	}

	graph, err := predictor.Process(req.Uuid, img, req.ConfidenceThreshold)
	if err != nil {
		return h.failed(logger, result, err)
	}

	modelInfo := h.ModelInfo
	result.Status = datastructures.StatusDone
	result.SceneGraph = *graph
	result.ModelInfo = &modelInfo

	if err := h.render(req.Uuid, img, graph); err != nil {
		logger.Error("[Worker] Couldn't render scene graph: ", err.Error())
	} else {
		result.AnnotatedImageURL = h.Layout.URL(req.Uuid, h.Layout.AnnotatedImageName(req.Uuid))
		result.GraphURL = h.Layout.URL(req.Uuid, h.Layout.GraphImageName(req.Uuid))
	}

	if err := h.Layout.WriteResult(result); err != nil {
		logger.Error("[Worker] Couldn't write result: ", err.Error())
	}

	if err := h.Store.Store(result); err != nil {
		logger.Error("[Worker] Couldn't store result: ", err.Error())
		return result
	}

	//successfully predicted, remove file
	if err := h.Layout.RemoveUpload(req.Uuid); err != nil {
		logger.Debug("[Worker] Couldn't remove file ", err.Error())
	}
	return result
}

func (h *Handler) render(jobID string, img image.Image, graph *datastructures.SceneGraph) error {
	dir := h.Layout.OutputDir(jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "couldn't create output directory")
	}
	if err := render.SaveAnnotated(img, graph.Objects, filepath.Join(dir, h.Layout.AnnotatedImageName(jobID))); err != nil {
		return err
	}
	return render.SaveGraph(graph.Objects, graph.Relationships, filepath.Join(dir, h.Layout.GraphImageName(jobID)))
}

func (h *Handler) failed(logger *log.Entry, result datastructures.PredictionResult, err error) datastructures.PredictionResult {
	result.Status = datastructures.StatusFailed
	if errors.Is(err, scenegraph.ErrNoObjectsDetected) {
		result.Reason = datastructures.ReasonNoObjectsDetected
		logger.Info("[Worker] No objects detected")
	} else {
		result.Reason = datastructures.ReasonInternal
		result.Error = internalErrorMessage
		logger.WithError(err).Error("[Worker] Couldn't predict")
	}

	if err := h.Layout.WriteResult(result); err != nil {
		logger.Error("[Worker] Couldn't write result: ", err.Error())
	}
	if err := h.Store.Store(result); err != nil {
		logger.Error("[Worker] Couldn't store result: ", err.Error())
	}
	return result
}

// NewWorker creates takes a numeric id and a channel w/ worker pool.
func NewWorker(id int, workerPool chan chan Job, newPredictor PredictorFactory, handler *Handler, wg *sync.WaitGroup) Worker {
	return Worker{
		id:           id,
		jobQueue:     make(chan Job),
		workerPool:   workerPool,
		quitChan:     make(chan bool),
		newPredictor: newPredictor,
		handler:      handler,
		wg:           wg,
	}
}

type Worker struct {
	id           int
	jobQueue     chan Job
	workerPool   chan chan Job
	quitChan     chan bool
	newPredictor PredictorFactory
	handler      *Handler
	wg           *sync.WaitGroup
}

func (w Worker) start() error {
	log.Debug("[Worker] Worker ", w.id, " starting")
	predictor, err := w.newPredictor()
	if err != nil {
		return errors.Wrapf(err, "worker %d couldn't create sessions", w.id)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer predictor.Close()
		for {
			// Add my jobQueue to the worker pool.
			w.workerPool <- w.jobQueue

			select {
			case job := <-w.jobQueue:
				// Dispatcher has added a job to my jobQueue.
				w.handler.Handle(predictor, job.PredictionRequest)

			case <-w.quitChan:
				// We have been asked to stop.
				log.Debug("[Worker] Worker ", w.id, " stopping")
				return
			}
		}
	}()
	return nil
}

func (w Worker) stop() {
	go func() {
		w.quitChan <- true
	}()
}

// NewDispatcher creates, and returns a new Dispatcher object.
func NewDispatcher(jobQueue chan Job, maxWorkers int, newPredictor PredictorFactory, handler *Handler) *Dispatcher {
	workerPool := make(chan chan Job, maxWorkers)

	return &Dispatcher{
		jobQueue:     jobQueue,
		maxWorkers:   maxWorkers,
		workerPool:   workerPool,
		newPredictor: newPredictor,
		handler:      handler,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

type Dispatcher struct {
	workerPool   chan chan Job
	maxWorkers   int
	jobQueue     chan Job
	newPredictor PredictorFactory
	handler      *Handler
	workers      []Worker
	wg           sync.WaitGroup
	quit         chan struct{}
	done         chan struct{}
}

// run starts the workers. If one of them can't create its sessions, the
// already started ones are stopped again.
func (d *Dispatcher) run() error {
	for i := 0; i < d.maxWorkers; i++ {
		worker := NewWorker(i+1, d.workerPool, d.newPredictor, d.handler, &d.wg)
		if err := worker.start(); err != nil {
			d.stopWorkers()
			return err
		}
		d.workers = append(d.workers, worker)
	}

	go d.dispatch()
	return nil
}

// dispatch hands a job to a worker only once the worker is idle, so jobs
// nobody started stay in jobQueue.
func (d *Dispatcher) dispatch() {
	defer close(d.done)
	for {
		var workerJobQueue chan Job
		select {
		case workerJobQueue = <-d.workerPool:
		case <-d.quit:
			return
		}

		select {
		case job := <-d.jobQueue:
			workerJobQueue <- job
		case <-d.quit:
			return
		}
	}
}

// stop waits for the running jobs to finish, stops the workers and returns
// the jobs that were never started, in queue order. Nothing may send on
// the job queue once stop is called.
func (d *Dispatcher) stop() []Job {
	close(d.quit)
	<-d.done
	d.stopWorkers()
	d.wg.Wait()

	var pending []Job
	for {
		select {
		case job := <-d.jobQueue:
			pending = append(pending, job)
		default:
			return pending
		}
	}
}

func (d *Dispatcher) stopWorkers() {
	for _, w := range d.workers {
		w.stop()
	}
	d.workers = nil
}
