// Package backend wraps every AWS call the CLI makes.
//
// A Backend holds one client per service behind a small interface, so
// commands receive it as a dependency and tests can inject fakes.
package backend

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/creasty/defaults"
	"github.com/go-resty/resty/v2"
	"github.com/rglonek/logger"
)

// the pricing API is only served from a couple of regions
const PricingRegion = "us-east-1"

type StaticCredentials struct {
	KeyID     string
	SecretKey string
}

type Config struct {
	Region          string
	Profile         string
	Static          *StaticCredentials
	WorkDir         string
	PriceCacheTTL   time.Duration `default:"24h"`
	PublicIPURL     string        `default:"https://checkip.amazonaws.com"`
	PublicIPTimeout time.Duration `default:"10s"`
	Log             *logger.Logger
}

// Clients is the set of service clients a Backend talks to.
type Clients struct {
	EC2        EC2API
	ECS        ECSAPI
	Pricing    PricingAPI
	STS        STSAPI
	CloudWatch CloudWatchAPI
	IAM        IAMAPI
	Scheduler  SchedulerAPI
	SSM        SSMAPI
}

type Backend struct {
	ec2        EC2API
	ecs        ECSAPI
	pricing    PricingAPI
	sts        STSAPI
	cloudwatch CloudWatchAPI
	iam        IAMAPI
	scheduler  SchedulerAPI
	ssm        SSMAPI
	region     string
	profile    string
	workDir    string
	cacheTTL   time.Duration
	log        *logger.Logger
	http       *resty.Client
	sleep      func(time.Duration)
	now        func() time.Time
}

func getCfgForClient(c *Config, region string) (*aws.Config, error) {
	opts := []func(*config.LoadOptions) error{}
	switch {
	case c.Static != nil:
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.Static.KeyID, c.Static.SecretKey, "")))
	case c.Profile != "":
		opts = append(opts, config.WithSharedConfigProfile(c.Profile))
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// New loads the AWS configuration and creates all service clients.
// The pricing client always targets PricingRegion.
func New(c *Config) (*Backend, error) {
	if c == nil {
		return nil, errors.New("backend config is required")
	}
	if err := defaults.Set(c); err != nil {
		return nil, err
	}
	cfg, err := getCfgForClient(c, c.Region)
	if err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		return nil, errors.New("no AWS region configured, set aws_region with 'remote config set aws_region <region>' or AWS_DEFAULT_REGION")
	}
	pcfg, err := getCfgForClient(c, PricingRegion)
	if err != nil {
		return nil, err
	}
	b := NewWithClients(c, &Clients{
		EC2:        ec2.NewFromConfig(*cfg),
		ECS:        ecs.NewFromConfig(*cfg),
		Pricing:    pricing.NewFromConfig(*pcfg),
		STS:        sts.NewFromConfig(*cfg),
		CloudWatch: cloudwatch.NewFromConfig(*cfg),
		IAM:        iam.NewFromConfig(*cfg),
		Scheduler:  scheduler.NewFromConfig(*cfg),
		SSM:        ssm.NewFromConfig(*cfg),
	})
	b.region = cfg.Region
	return b, nil
}

// NewWithClients builds a Backend around already created clients.
func NewWithClients(c *Config, clients *Clients) *Backend {
	defaults.Set(c)
	log := c.Log
	if log == nil {
		log = logger.NewLogger()
		log.SetLogLevel(logger.ERROR)
	}
	if c.WorkDir != "" {
		os.MkdirAll(c.WorkDir, 0700)
	}
	return &Backend{
		ec2:        clients.EC2,
		ecs:        clients.ECS,
		pricing:    clients.Pricing,
		sts:        clients.STS,
		cloudwatch: clients.CloudWatch,
		iam:        clients.IAM,
		scheduler:  clients.Scheduler,
		ssm:        clients.SSM,
		region:     c.Region,
		profile:    c.Profile,
		workDir:    c.WorkDir,
		cacheTTL:   c.PriceCacheTTL,
		log:        log,
		http:       resty.New().SetBaseURL(c.PublicIPURL).SetTimeout(c.PublicIPTimeout).SetHeader("User-Agent", "remote"),
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

func (b *Backend) Region() string {
	return b.region
}

func (b *Backend) Profile() string {
	return b.profile
}

// SetSleep replaces the sleeper used between polls, for tests.
func (b *Backend) SetSleep(f func(time.Duration)) {
	b.sleep = f
}

// SetClock replaces the time source, for tests.
func (b *Backend) SetClock(f func() time.Time) {
	b.now = f
}
