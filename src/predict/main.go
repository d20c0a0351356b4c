package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bbernhard/scenegraph-playground/src/backend/onnx"
	commons "github.com/bbernhard/scenegraph-playground/src/commons"
	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/bbernhard/scenegraph-playground/src/detection"
	"github.com/bbernhard/scenegraph-playground/src/scenegraph"
	log "github.com/sirupsen/logrus"
)

// consume moves requests from the redis queue to jobQueue until stop is
// closed. An empty queue is polled again after idle.
func consume(store *commons.JobStore, jobQueue chan<- Job, stop <-chan struct{}, idle time.Duration) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		req, err := store.Pop()
		if err != nil {
			log.Debug("[Main] Couldn't get request: ", err.Error())
		}
		if req == nil {
			select {
			case <-stop:
				return
			case <-time.After(idle): //nothing in queue, sleep
			}
			continue
		}

		log.WithField("job", req.Uuid).Debug("[Main] Got a new request to process")
		select {
		case jobQueue <- Job{PredictionRequest: *req}:
		case <-stop:
			requeue(store, []Job{{PredictionRequest: *req}})
			return
		}
	}
}

// requeue hands jobs that were taken off redis but never processed back
// to the queue.
func requeue(store *commons.JobStore, jobs []Job) {
	if len(jobs) == 0 {
		return
	}
	reqs := make([]datastructures.PredictionRequest, len(jobs))
	for i, job := range jobs {
		reqs[i] = job.PredictionRequest
	}
	if err := store.Requeue(reqs); err != nil {
		log.Error("[Main] Couldn't requeue ", len(reqs), " requests: ", err.Error())
		return
	}
	log.Info("[Main] Requeued ", len(reqs), " requests")
}

func main() {
	redisAddress := flag.String("redis-address", ":6379", "Address to the Redis server")
	redisMaxConnections := flag.Int("redis-max-connections", 10, "Max connections to Redis")
	maxWorkerQueueSize := flag.Int("max-worker-queue-size", 100, "The size of job queue")
	maxWorkers := flag.Int("max-workers", 2, "The number of workers to start")
	threads := flag.Int("threads", 0, "Intra-op threads per session (0 = runtime default)")
	modelsDir := flag.String("models-dir", "../models/", "Location of model_info.json and the model files")
	onnxruntimeLib := flag.String("onnxruntime-lib", "", "Path to the onnxruntime shared library")
	uploadsDir := flag.String("uploads-dir", "../uploads/", "Location of the uploaded images waiting for processing")
	outputsDir := flag.String("outputs-dir", "../outputs/", "Location of the rendered scene graphs")
	resultTTL := flag.Duration("result-ttl", time.Hour, "How long results are kept in Redis")
	logLevel := flag.String("log-level", "debug", "Log level (debug, info, warning, error)")
	sentryDSN := flag.String("sentry-dsn", "", "Sentry DSN errors are reported to")

	flag.Parse()

	if err := commons.SetupLogging(*logLevel, *sentryDSN); err != nil {
		log.Fatal("[Main] Couldn't set up logging: ", err.Error())
	}

	log.Debug("[Main] Starting Scene Graph Worker...")

	config, err := commons.LoadModelInfo(*modelsDir)
	if err != nil {
		log.Fatal("[Main] Couldn't load model info: ", err.Error())
	}

	resources, err := scenegraph.LoadResources(config.Vocabulary, config.Checkpoint)
	if err != nil {
		log.Fatal("[Main] Couldn't load model: ", err.Error())
	}

	classes, err := detection.LoadClassFile(config.Detector.Classes)
	if err != nil {
		log.Fatal("[Main] Couldn't get detector classes: ", err.Error())
	}

	if err := onnx.Initialize(*onnxruntimeLib); err != nil {
		log.Fatal("[Main] ", err.Error())
	}
	defer onnx.Shutdown()

	if err := os.MkdirAll(*outputsDir, 0755); err != nil {
		log.Fatal("[Main] Couldn't create outputs directory: ", err.Error())
	}

	redisPool := commons.NewRedisPool(*redisAddress, *redisMaxConnections)
	defer redisPool.Close()

	store := commons.NewJobStore(redisPool, *resultTTL)
	handler := &Handler{
		Store:     store,
		Layout:    commons.Layout{UploadsDir: *uploadsDir, OutputsDir: *outputsDir},
		ModelInfo: config.ModelInfo,
	}

	log.Debug("[Main] Starting Dispatcher...")

	jobQueue := make(chan Job, *maxWorkerQueueSize)
	dispatcher := NewDispatcher(jobQueue, *maxWorkers, newPipelineFactory(config, resources, classes, *threads), handler)
	if err := dispatcher.run(); err != nil {
		log.Fatal("[Main] Couldn't start workers: ", err.Error())
	}

	stop := make(chan struct{})
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
		<-signals
		log.Info("[Main] Shutting down")
		close(stop)
	}()

	consume(store, jobQueue, stop, time.Second)
	requeue(store, dispatcher.stop())
}
