package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/allocator"
)

type GAConfig struct {
	PopulationSize int     `env:"POPULATION_SIZE"`
	Generations    int     `env:"GENERATIONS"`
	CrossoverRate  float64 `env:"CROSSOVER_RATE" envDefault:"0.7"`
	MutationRate   float64 `env:"MUTATION_RATE" envDefault:"0.3"`
	Elitism        float64 `env:"ELITISM" envDefault:"0.15"`
	TournamentSize int     `env:"TOURNAMENT_SIZE" envDefault:"3"`
}

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Database struct {
		DSN                string `env:"DSN,required"`
		ConnectTimeout     int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout       int    `env:"QUERY_TIMEOUT" envDefault:"10"`
		TransactionTimeout int    `env:"TRANSACTION_TIMEOUT" envDefault:"20"`
		MaxOpenConns       int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns       int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime        int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	InitialAdmin struct {
		Username string `env:"USERNAME" envDefault:"admin"`
		Password string `env:"PASSWORD,required"`
		FullName string `env:"FULL_NAME" envDefault:"管理员"`
		Email    string `env:"EMAIL,required"`
	} `envPrefix:"INITIAL_ADMIN_"`
	JWT struct {
		Expiration int    `env:"EXPIRATION" envDefault:"336"` // 单位为小时，即 14 天
		Secret     string `env:"SECRET,required"`
	} `envPrefix:"JWT_"`
	Seed struct {
		User struct {
			Password string `env:"PASSWORD" envDefault:"upae@seed"`
		} `envPrefix:"USER_"`
	} `envPrefix:"SEED_"`
	Email struct {
		UserDomain string `env:"USER_DOMAIN" envDefault:"upae.local"`
		SMTP       struct {
			Username    string `env:"USERNAME"`
			Password    string `env:"PASSWORD"`
			Host        string `env:"HOST"`
			Port        int    `env:"PORT" envDefault:"465"`
			DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
		} `envPrefix:"SMTP_"`
	} `envPrefix:"EMAIL_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
	Redis struct {
		Host                string `env:"HOST" envDefault:"localhost"`
		Port                int    `env:"PORT" envDefault:"6379"`
		Password            string `env:"PASSWORD"`
		ConnectTimeout      int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		OperationExpiration int    `env:"OPERATION_EXPIRATION" envDefault:"10"`
	} `envPrefix:"REDIS_"`
	Allocator struct {
		Seed           int64    `env:"SEED" envDefault:"42"`
		Workers        int      `env:"WORKERS" envDefault:"1"`
		SingleCacheTTL int      `env:"SINGLE_CACHE_TTL" envDefault:"300"` // 单位为秒，0 表示不缓存
		JobTimeout     int      `env:"JOB_TIMEOUT" envDefault:"600"`      // 单位为秒
		Batch          GAConfig `envPrefix:"BATCH_"`
		Single         GAConfig `envPrefix:"SINGLE_"`
	} `envPrefix:"ALLOCATOR_"`
	Worker struct {
		MetricsPort string `env:"METRICS_PORT" envDefault:"9101"`
		Prefetch    int    `env:"PREFETCH" envDefault:"1"`
	} `envPrefix:"WORKER_"`
	NewUser struct {
		PasswordLength int `env:"PASSWORD_LENGTH" envDefault:"12"`
	} `envPrefix:"NEW_USER_"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok {
			// 只返回第一个错误使得日志更清晰
			return nil, aggErr.Errors[0]
		}
		return nil, err
	}

	// 种群大小和迭代次数在批量和单个患者两种模式下的默认值不同
	batch := allocator.DefaultParameters()
	single := allocator.SingleParameters()
	if cfg.Allocator.Batch.PopulationSize == 0 {
		cfg.Allocator.Batch.PopulationSize = batch.PopulationSize
	}
	if cfg.Allocator.Batch.Generations == 0 {
		cfg.Allocator.Batch.Generations = batch.Generations
	}
	if cfg.Allocator.Single.PopulationSize == 0 {
		cfg.Allocator.Single.PopulationSize = single.PopulationSize
	}
	if cfg.Allocator.Single.Generations == 0 {
		cfg.Allocator.Single.Generations = single.Generations
	}

	return cfg, nil
}

func (cfg *Config) parameters(ga GAConfig) allocator.Parameters {
	return allocator.Parameters{
		PopulationSize: ga.PopulationSize,
		Generations:    ga.Generations,
		CrossoverRate:  ga.CrossoverRate,
		MutationRate:   ga.MutationRate,
		Elitism:        ga.Elitism,
		TournamentSize: ga.TournamentSize,
		Seed:           cfg.Allocator.Seed,
		Workers:        cfg.Allocator.Workers,
	}
}

// BatchParameters 返回批量分配使用的遗传算法参数
func (cfg *Config) BatchParameters() allocator.Parameters {
	return cfg.parameters(cfg.Allocator.Batch)
}

// SingleParameters 返回单个患者查询使用的遗传算法参数
func (cfg *Config) SingleParameters() allocator.Parameters {
	return cfg.parameters(cfg.Allocator.Single)
}
