package rekognition

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
)

// API is the subset of the Rekognition client the detector uses
type API interface {
	DetectFaces(ctx context.Context, params *rekognition.DetectFacesInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectFacesOutput, error)
}

// Client wraps the AWS Rekognition client and its credential chain
type Client struct {
	api         API
	credentials aws.CredentialsProvider
	config      Config
}

// NewClient creates a new Rekognition client with the provided configuration
// It uses the AWS default credential chain to authenticate
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Client{
		api:         rekognition.NewFromConfig(awsCfg),
		credentials: awsCfg.Credentials,
		config:      cfg,
	}, nil
}

// NewClientWithAPI builds a client around an existing API implementation
func NewClientWithAPI(api API, credentials aws.CredentialsProvider, cfg Config) *Client {
	return &Client{
		api:         api,
		credentials: credentials,
		config:      cfg,
	}
}

// CheckCredentials resolves credentials from the chain
func (c *Client) CheckCredentials(ctx context.Context) error {
	if c.credentials == nil {
		return ErrInvalidCredentials
	}
	if _, err := c.credentials.Retrieve(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return nil
}
