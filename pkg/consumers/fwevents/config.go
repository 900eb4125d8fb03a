package fwevents

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/carverauto/astreg/pkg/models"
)

const (
	DefaultStreamName    = "ASTREG_FW"
	DefaultConsumerName  = "astreg-registry"
	DefaultSubjectPrefix = "astreg.fw"
	DefaultDiagSubject   = "astreg.diag.dump"
	DefaultAdminSubject  = "astreg.admin"
	DefaultCommandPrefix = "astreg.fwcmd"
	DefaultNotifyPrefix  = "astreg.notify"

	defaultMaxDeliver = 3
	defaultFetchBatch = 64
	defaultAckWait    = 30 * time.Second
	defaultFetchWait  = 5 * time.Second
)

var (
	ErrMissingStreamName    = errors.New("stream_name is required")
	ErrMissingConsumerName  = errors.New("consumer_name is required")
	ErrMissingSubjectPrefix = errors.New("subject_prefix is required")
	ErrInvalidMaxDeliver    = errors.New("max_deliver must be at least 1")
	ErrInvalidFetchBatch    = errors.New("fetch_batch must be at least 1")
	ErrInvalidJSON          = errors.New("failed to unmarshal JSON configuration")
)

// Config configures the firmware event consumer and the diagnostics and admin
// responders.
type Config struct {
	NATS          models.NATSConfig `json:"nats"`
	StreamName    string            `json:"stream_name"`
	ConsumerName  string            `json:"consumer_name"`
	SubjectPrefix string            `json:"subject_prefix"`
	DiagSubject   string            `json:"diag_subject"`
	AdminSubject  string            `json:"admin_subject"`
	CommandPrefix string            `json:"command_prefix"`
	NotifyPrefix  string            `json:"notify_prefix"`
	CreateStream  bool              `json:"create_stream"`
	MaxDeliver    int               `json:"max_deliver"`
	FetchBatch    int               `json:"fetch_batch"`
	AckWait       models.Duration   `json:"ack_wait"`
	FetchWait     models.Duration   `json:"fetch_wait"`
}

// DefaultConfig returns a consumer config for a local NATS server.
func DefaultConfig() Config {
	return Config{
		NATS:          models.NATSConfig{URL: "nats://127.0.0.1:4222"},
		StreamName:    DefaultStreamName,
		ConsumerName:  DefaultConsumerName,
		SubjectPrefix: DefaultSubjectPrefix,
		DiagSubject:   DefaultDiagSubject,
		AdminSubject:  DefaultAdminSubject,
		CommandPrefix: DefaultCommandPrefix,
		NotifyPrefix:  DefaultNotifyPrefix,
		CreateStream:  true,
		MaxDeliver:    defaultMaxDeliver,
		FetchBatch:    defaultFetchBatch,
		AckWait:       models.Duration(defaultAckWait),
		FetchWait:     models.Duration(defaultFetchWait),
	}
}

// UnmarshalJSON fills unset fields from DefaultConfig.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config

	alias := Alias(DefaultConfig())

	if err := json.Unmarshal(data, &alias); err != nil {
		return errors.Join(ErrInvalidJSON, err)
	}

	*c = Config(alias)

	return nil
}

func (c *Config) Validate() error {
	var errs []error

	if err := c.NATS.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.StreamName == "" {
		errs = append(errs, ErrMissingStreamName)
	}

	if c.ConsumerName == "" {
		errs = append(errs, ErrMissingConsumerName)
	}

	if c.SubjectPrefix == "" {
		errs = append(errs, ErrMissingSubjectPrefix)
	}

	if c.MaxDeliver < 1 {
		errs = append(errs, ErrInvalidMaxDeliver)
	}

	if c.FetchBatch < 1 {
		errs = append(errs, ErrInvalidFetchBatch)
	}

	return errors.Join(errs...)
}
