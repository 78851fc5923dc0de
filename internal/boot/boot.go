// Package boot wires the batch runner's components from loaded configuration.
// The CLI and the Lambda entrypoint share the same assembly so a run behaves
// identically regardless of how it was launched.
package boot

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/dffilms/batch-runner/internal/catalog"
	"github.com/dffilms/batch-runner/internal/config"
	"github.com/dffilms/batch-runner/internal/dispatch"
	"github.com/dffilms/batch-runner/internal/logging"
	"github.com/dffilms/batch-runner/internal/run"
)

// InitAWS loads the default AWS config. Fatals on failure since nothing can
// proceed without credentials.
func InitAWS() aws.Config {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg
}

// LoadTriggerToken resolves the trigger endpoint's bearer token from SSM
// Parameter Store when TRIGGER_AUTH_SSM_PARAM is set and no token was given
// directly. Fatals on a read failure: a run that would dispatch with broken
// auth should not start.
func LoadTriggerToken(awsCfg aws.Config, c *config.Config) {
	if c.TriggerAuthToken != "" || c.TriggerAuthSSMParam == "" {
		return
	}
	ssmClient := ssm.NewFromConfig(awsCfg)
	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &c.TriggerAuthSSMParam,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", c.TriggerAuthSSMParam).Msg("Failed to read trigger auth token from SSM")
	}
	c.TriggerAuthToken = *result.Parameter.Value
	log.Debug().
		Str("param", c.TriggerAuthSSMParam).
		Dur("elapsed", time.Since(ssmStart)).
		Msg("Trigger auth token loaded from SSM")
}

// BuildCoordinator assembles the catalog, marker set, dispatch transport, and
// coordinator selected by the configuration.
func BuildCoordinator(awsCfg aws.Config, c *config.Config) *run.Coordinator {
	s3Client := s3.NewFromConfig(awsCfg)

	var markers catalog.MarkerSet
	switch c.MarkerStore {
	case config.MarkerStoreDynamo:
		markers = catalog.NewDynamoMarkerSet(dynamodb.NewFromConfig(awsCfg), c.MarkerTable)
	default:
		markers = catalog.NewManifestMarkerSet(s3Client, c.Bucket, c.ProcessedManifestKey)
	}

	cat := catalog.New(catalog.NewS3Lister(s3Client), markers, c.MediaExt)

	var transport dispatch.Transport
	switch c.DispatchMode {
	case config.DispatchModeLambda:
		transport = dispatch.NewLambdaTransport(lambdasvc.NewFromConfig(awsCfg), c.StartPipelineFunctionARN)
	default:
		transport = dispatch.NewHTTPTransport(c.StartPipelineURL, c.TriggerAuthToken)
	}

	disp := dispatch.New(transport, c.Source, c.DispatchTimeout, c.DispatchConcurrency)
	return run.New(cat, disp, c.Bucket, c.Folder, c.Count)
}

// LogStartup emits the consolidated startup event for the resolved config.
func LogStartup(name string, c *config.Config, initDuration time.Duration) {
	startup := logging.NewStartupLogger(name).
		S3Bucket("assets", c.Bucket).
		Config("folder", c.Folder).
		Config("count", strconv.Itoa(c.Count)).
		Config("markerStore", c.MarkerStore).
		Config("dispatchMode", c.DispatchMode).
		Config("dispatchTimeout", c.DispatchTimeout.String()).
		Config("dispatchConcurrency", strconv.Itoa(c.DispatchConcurrency)).
		Feature("dynamoMarkers", c.MarkerStore == config.MarkerStoreDynamo).
		Feature("lambdaDispatch", c.DispatchMode == config.DispatchModeLambda).
		Feature("bearerAuth", c.TriggerAuthToken != "").
		InitDuration(initDuration)

	if c.Source != "" {
		startup.Config("source", c.Source)
	}
	if c.MediaExt != "" {
		startup.Config("mediaExt", c.MediaExt)
	}
	if c.MarkerStore == config.MarkerStoreDynamo {
		startup.DynamoTable("markers", c.MarkerTable)
	} else {
		startup.Config("processedManifestKey", c.ProcessedManifestKey)
	}
	if c.DispatchMode == config.DispatchModeLambda {
		startup.LambdaFunc("startPipeline", c.StartPipelineFunctionARN)
	} else {
		startup.Config("startPipelineUrl", c.StartPipelineURL)
	}
	if c.TriggerAuthSSMParam != "" {
		startup.SSMParam("triggerAuthToken", c.TriggerAuthSSMParam)
	}

	startup.Log()
}
