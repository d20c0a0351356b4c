package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	commons "github.com/bbernhard/scenegraph-playground/src/commons"
	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"
)

const DefaultConfidenceThreshold = 0.5

const noObjectsMessage = "No objects detected. Try a different image."

func setCorsHeaders(c *gin.Context) {
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Requested-With, X-PINGOTHER, X-File-Name, Cache-Control")
	c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")
}

// NewRouter wires the scene graph endpoints. Uploads are written below
// layout.UploadsDir; rendered outputs are served from layout.OutputsDir.
func NewRouter(store *commons.JobStore, layout commons.Layout) *gin.Engine {
	router := gin.Default()
	router.Use(static.Serve("/outputs", static.LocalFile(layout.OutputsDir, false)))

	router.GET("/", func(c *gin.Context) {
		setCorsHeaders(c)
		c.JSON(http.StatusOK, gin.H{"message": "Scene Graph Generation API is running"})
	})

	router.GET("/api/health", func(c *gin.Context) {
		setCorsHeaders(c)
		if err := store.Ping(); err != nil {
			log.Error("[Health] Redis is not reachable: ", err.Error())
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.OPTIONS("/api/generate-scene-graph", func(c *gin.Context) {
		setCorsHeaders(c)
		c.JSON(http.StatusOK, struct{}{})
	})

	router.POST("/api/generate-scene-graph", func(c *gin.Context) {
		setCorsHeaders(c)
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Location")

		header, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Picture is missing"})
			return
		}
		if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Uploaded file must be an image"})
			return
		}

		threshold := float64(DefaultConfidenceThreshold)
		if s := c.PostForm("confidence_threshold"); s != "" {
			threshold, err = strconv.ParseFloat(s, 32)
			// NaN fails both comparisons
			if err != nil || !(threshold >= 0 && threshold <= 1) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Confidence threshold must be between 0 and 1"})
				return
			}
		}

		u, err := uuid.NewV4()
		if err != nil {
			log.Error("[Predicting] Couldn't create job id: ", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't accept request - please try again later"})
			return
		}
		jobID := u.String()

		filename := layout.UploadPath(jobID, filepath.Ext(header.Filename))
		if err := os.MkdirAll(layout.UploadDir(jobID), 0755); err != nil {
			log.Error("[Predicting] Couldn't create upload directory: ", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't accept request - please try again later"})
			return
		}
		if err := c.SaveUploadedFile(header, filename); err != nil {
			log.Error("[Predicting] Couldn't save upload: ", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't accept request - please try again later"})
			return
		}

		now := time.Now().Unix()
		pending := datastructures.PredictionResult{JobID: jobID, Status: datastructures.StatusPending, Created: now}
		if err := store.Store(pending); err != nil {
			log.Error("[Predicting] Couldn't accept request: ", err.Error())
			layout.RemoveUpload(jobID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't accept request - please try again later"})
			return
		}

		//add a prediction request to the REDIS 'predictme' queue
		req := datastructures.PredictionRequest{
			Uuid:                jobID,
			Filename:            filename,
			Created:             now,
			ConfidenceThreshold: float32(threshold),
		}
		if err := store.Push(req); err != nil {
			log.Error("[Predicting] Couldn't accept request: ", err.Error())
			if err := store.Delete(jobID); err != nil {
				log.Error("[Predicting] Couldn't remove pending result: ", err.Error())
			}
			layout.RemoveUpload(jobID)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't accept request - please try again later"})
			return
		}

		log.WithField("job", jobID).Info("[Predicting] Accepted request")
		c.Writer.Header().Set("Location", "/api/generate-scene-graph/"+jobID)
		c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": datastructures.StatusPending})
	})

	router.GET("/api/generate-scene-graph/:job_id", func(c *gin.Context) {
		setCorsHeaders(c)

		jobID := c.Param("job_id")
		if _, err := uuid.FromString(jobID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
			return
		}

		result, err := store.Get(jobID)
		if err != nil {
			log.Error("[Predicting] Couldn't get status of request: ", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't get status of request - please try again later"})
			return
		}
		if result == nil {
			// expired in redis, maybe still on disk
			result, err = layout.ReadResult(jobID)
			if err != nil {
				log.Error("[Predicting] Couldn't read stored result: ", err.Error())
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Couldn't get status of request - please try again later"})
				return
			}
		}
		if result == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Results for job " + jobID + " not found"})
			return
		}

		switch result.Status {
		case datastructures.StatusPending:
			c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "status": result.Status})
		case datastructures.StatusFailed:
			if result.Reason == datastructures.ReasonNoObjectsDetected {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"job_id": jobID, "status": result.Status, "reason": result.Reason, "error": noObjectsMessage})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"job_id": jobID, "status": result.Status, "reason": result.Reason, "error": result.Error})
		default:
			c.JSON(http.StatusOK, result)
		}
	})

	return router
}
