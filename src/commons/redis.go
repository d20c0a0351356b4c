package commons

import (
	"encoding/json"
	"time"

	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/garyburd/redigo/redis"
	"github.com/pkg/errors"
)

const (
	// PredictionQueue is the redis list the api pushes jobs onto.
	PredictionQueue = "predictme"
	resultKeyPrefix = "predict"
)

func NewRedisPool(address string, maxConnections int) *redis.Pool {
	return redis.NewPool(func() (redis.Conn, error) {
		c, err := redis.Dial("tcp", address)
		if err != nil {
			return nil, err
		}
		return c, err
	}, maxConnections)
}

// JobStore keeps the job queue and the per-job results in redis.
type JobStore struct {
	pool *redis.Pool
	ttl  time.Duration
}

func NewJobStore(pool *redis.Pool, ttl time.Duration) *JobStore {
	return &JobStore{pool: pool, ttl: ttl}
}

func (s *JobStore) Push(req datastructures.PredictionRequest) error {
	serialized, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "couldn't marshal prediction request")
	}

	conn := s.pool.Get()
	defer conn.Close()

	_, err = conn.Do("RPUSH", PredictionQueue, serialized)
	return errors.Wrap(err, "couldn't queue prediction request")
}

// Requeue puts requests back at the head of the queue, keeping their order,
// so they are popped before anything pushed in the meantime.
func (s *JobStore) Requeue(reqs []datastructures.PredictionRequest) error {
	conn := s.pool.Get()
	defer conn.Close()

	for i := len(reqs) - 1; i >= 0; i-- {
		serialized, err := json.Marshal(reqs[i])
		if err != nil {
			return errors.Wrap(err, "couldn't marshal prediction request")
		}
		if _, err := conn.Do("LPUSH", PredictionQueue, serialized); err != nil {
			return errors.Wrap(err, "couldn't requeue prediction request")
		}
	}
	return nil
}

// Pop takes the oldest request off the queue. It returns nil when the
// queue is empty.
func (s *JobStore) Pop() (*datastructures.PredictionRequest, error) {
	conn := s.pool.Get()
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("LPOP", PredictionQueue))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "couldn't pop prediction request")
	}

	var req datastructures.PredictionRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, errors.Wrap(err, "couldn't unmarshal prediction request")
	}
	return &req, nil
}

// Store saves the result of a job. Results expire after the store's ttl.
func (s *JobStore) Store(result datastructures.PredictionResult) error {
	serialized, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "couldn't marshal prediction result")
	}

	conn := s.pool.Get()
	defer conn.Close()

	_, err = conn.Do("SETEX", resultKeyPrefix+result.JobID, int(s.ttl.Seconds()), serialized)
	return errors.Wrap(err, "couldn't store prediction result")
}

// Get returns the stored result of a job, or nil when there is none.
func (s *JobStore) Get(jobID string) (*datastructures.PredictionResult, error) {
	conn := s.pool.Get()
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", resultKeyPrefix+jobID))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "couldn't get prediction result")
	}

	var result datastructures.PredictionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "couldn't unmarshal prediction result")
	}
	return &result, nil
}

// Delete removes the stored result of a job.
func (s *JobStore) Delete(jobID string) error {
	conn := s.pool.Get()
	defer conn.Close()
	_, err := conn.Do("DEL", resultKeyPrefix+jobID)
	return errors.Wrap(err, "couldn't delete prediction result")
}

// QueueLength reports how many jobs are waiting.
func (s *JobStore) QueueLength() (int, error) {
	conn := s.pool.Get()
	defer conn.Close()
	n, err := redis.Int(conn.Do("LLEN", PredictionQueue))
	return n, errors.Wrap(err, "couldn't get queue length")
}

func (s *JobStore) Ping() error {
	conn := s.pool.Get()
	defer conn.Close()
	_, err := conn.Do("PING")
	return err
}
