package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog/log"
)

// LambdaInvoker is the subset of the Lambda client used by LambdaTransport.
type LambdaInvoker interface {
	Invoke(ctx context.Context, in *lambdasvc.InvokeInput, optFns ...func(*lambdasvc.Options)) (*lambdasvc.InvokeOutput, error)
}

// LambdaTransport triggers the pipeline by invoking the pipeline-start Lambda
// directly, for deployments where the entry point is a function rather than
// an HTTP endpoint. Uses InvocationType=Event so the runner is not held up by
// downstream processing time.
type LambdaTransport struct {
	client      LambdaInvoker
	functionARN string
}

// Compile-time interface check.
var _ Transport = (*LambdaTransport)(nil)

// NewLambdaTransport creates a LambdaTransport for the given function ARN.
func NewLambdaTransport(client LambdaInvoker, functionARN string) *LambdaTransport {
	return &LambdaTransport{
		client:      client,
		functionARN: functionARN,
	}
}

// Send invokes the pipeline-start Lambda asynchronously with the trigger
// payload as the event body.
func (t *LambdaTransport) Send(ctx context.Context, trigger Trigger) error {
	payload, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}

	out, err := t.client.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName:   aws.String(t.functionARN),
		InvocationType: lambdatypes.InvocationTypeEvent, // async, returns 202 immediately
		Payload:        payload,
	})
	if err != nil {
		return fmt.Errorf("invoke pipeline-start lambda: %w", err)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("pipeline-start lambda error: %s", *out.FunctionError)
	}

	log.Debug().
		Str("file", trigger.FileName).
		Msg("Pipeline-start lambda invoked")
	return nil
}
