package confirm

import (
	"log"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// TypeConfirmationTimeout is the asynq task type armed when a pair forms.
const TypeConfirmationTimeout = "confirmation:timeout"

// Processor runs the asynq server consuming confirmation timeout tasks.
type Processor struct {
	server  *asynq.Server
	service *Service
}

func NewProcessor(service *Service, redisOpt asynq.RedisClientOpt, concurrency int) *Processor {
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"confirmation": 6,
				"default":      3,
			},
			StrictPriority: true,
		},
	)

	return &Processor{
		server:  server,
		service: service,
	}
}

func (p *Processor) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeConfirmationTimeout, p.service.HandleTimeoutTask)

	go func() {
		if err := p.server.Run(mux); err != nil {
			log.Printf("[CONFIRM] Asynq server error: %v", err)
		}
	}()

	log.Println("[CONFIRM] Confirmation timeout processor started")
	return nil
}

func (p *Processor) Stop() {
	p.server.Shutdown()
}

// RedisOptFromURL resolves a redis:// URL into the connection options asynq
// expects.
func RedisOptFromURL(redisURL string) (asynq.RedisClientOpt, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}, nil
}
