package main

import (
	"flag"
	"os"
	"time"

	commons "github.com/bbernhard/scenegraph-playground/src/commons"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	releaseMode := flag.Bool("release", false, "Run in release mode")
	redisAddress := flag.String("redis-address", ":6379", "Address to the Redis server")
	redisMaxConnections := flag.Int("redis-max-connections", 50, "Max connections to Redis")
	uploadsDir := flag.String("uploads-dir", "../uploads/", "Location of the uploaded images waiting for processing")
	outputsDir := flag.String("outputs-dir", "../outputs/", "Location of the rendered scene graphs")
	listen := flag.String("listen", ":8081", "Address the API listens on")
	resultTTL := flag.Duration("result-ttl", time.Hour, "How long results are kept in Redis")
	logLevel := flag.String("log-level", "debug", "Log level (debug, info, warning, error)")
	sentryDSN := flag.String("sentry-dsn", "", "Sentry DSN errors are reported to")

	flag.Parse()

	if err := commons.SetupLogging(*logLevel, *sentryDSN); err != nil {
		log.Fatal("[Main] Couldn't set up logging: ", err.Error())
	}

	if *releaseMode {
		log.Info("[Main] Starting gin in release mode!")
		gin.SetMode(gin.ReleaseMode)
	}

	//uploads and outputs are temporary, the directories might not exist
	//(e.g if they live in /tmp and the server reboots)
	for _, dir := range []string{*uploadsDir, *outputsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal("[Main] Couldn't create directory: ", err.Error())
		}
	}

	redisPool := commons.NewRedisPool(*redisAddress, *redisMaxConnections)
	defer redisPool.Close()

	store := commons.NewJobStore(redisPool, *resultTTL)
	layout := commons.Layout{UploadsDir: *uploadsDir, OutputsDir: *outputsDir}

	router := NewRouter(store, layout)
	if err := router.Run(*listen); err != nil {
		log.Fatal("[Main] Couldn't start server: ", err.Error())
	}
}
