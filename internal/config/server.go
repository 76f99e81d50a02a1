package config

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-github/v59/github"
	"github.com/kelseyhightower/envconfig"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/oauth2"
)

type ServerConfig struct {
	Stage                  string `envconfig:"STAGE" default:"dev"`
	Port                   string `envconfig:"PORT" default:"8080"`
	BindAddress            string `envconfig:"BIND_ADDRESS"`
	MongoURI               string `envconfig:"MONGO_URI" default:"mongodb://127.0.0.1:27017"`
	MongoDatabase          string `envconfig:"MONGO_DATABASE" default:"plugin-tracker"`
	JWTSecret              string `envconfig:"JWT_SECRET" required:"true"`
	GitHubToken            string `envconfig:"GITHUB_TOKEN"`
	ArchiveBucket          string `envconfig:"ARCHIVE_BUCKET"`
	ArchiveAccessKeyID     string `envconfig:"ARCHIVE_ACCESS_KEY_ID"`
	ArchiveSecretAccessKey string `envconfig:"ARCHIVE_SECRET_ACCESS_KEY"`
	CloudflareAccountID    string `envconfig:"CLOUDFLARE_ACCOUNT_ID"`
	ArchiveHost            string `envconfig:"ARCHIVE_HOST"`
	DisableRequestCache    bool   `envconfig:"DISABLE_REQUEST_CACHE"`
	DisableMetrics         bool   `envconfig:"DISABLE_METRICS"`
	ProjectID              string `envconfig:"GOOGLE_CLOUD_PROJECT_ID"`
	Version                string
}

func NewServerConfigFromEnv() (*ServerConfig, error) {
	var sCfg ServerConfig
	err := envconfig.Process("", &sCfg)
	if err != nil {
		return nil, err
	}
	return &sCfg, nil
}

func (s *ServerConfig) GetServerAddr() string {
	return s.BindAddress + ":" + s.Port
}

func (s *ServerConfig) CreateMongoClient(ctx context.Context) (*mongo.Client, error) {
	return mongo.Connect(ctx, options.Client().ApplyURI(s.MongoURI))
}

func (s *ServerConfig) CreateGitHubClient() *github.Client {
	if s.GitHubToken == "" {
		return github.NewClient(nil)
	}
	oauthClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: s.GitHubToken}))
	return github.NewClient(oauthClient)
}

// ArchiveEnabled reports whether artifact archiving to object storage is
// configured.
func (s *ServerConfig) ArchiveEnabled() bool {
	return s.ArchiveBucket != "" && s.ArchiveHost != ""
}

func (s *ServerConfig) r2CloudflareEndpointResolver(_, _ string, _ ...interface{}) (aws.Endpoint, error) {
	return aws.Endpoint{
		URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.CloudflareAccountID),
	}, nil
}

func (s *ServerConfig) CreateS3Client() (*s3.Client, error) {
	staticCredentialsProvider := credentials.NewStaticCredentialsProvider(
		s.ArchiveAccessKeyID,
		s.ArchiveSecretAccessKey,
		"",
	)
	s3Cfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
		awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(s.r2CloudflareEndpointResolver)),
		awsConfig.WithCredentialsProvider(staticCredentialsProvider),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(s3Cfg), nil
}

func (s *ServerConfig) GetBucket() *string {
	return &s.ArchiveBucket
}

func (s *ServerConfig) GetPublicArchiveDownloadURL(path string) (string, error) {
	return url.JoinPath(s.ArchiveHost, path)
}
