package gojinn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	awslambda "github.com/aws/aws-sdk-go/service/lambda"
)

// LambdaInvoker is the production Invoker backend: it calls AWS Lambda's
// Invoke API, grounded on refinery-labs-refinery's
// golang/internal/worker/clientmanager.go (session construction) and
// activities.go's AwsLambdaActivity (InvokeInput{FunctionName, Payload,
// Qualifier}, lambdaClient.Invoke) — the exact {FunctionName, Payload,
// Qualifier} wire shape spec.md §4.5 names.
type LambdaInvoker struct {
	client *awslambda.Lambda
}

func NewLambdaInvoker(region string) (*LambdaInvoker, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("unable to create AWS session: %w", err)
	}
	return &LambdaInvoker{client: awslambda.New(sess)}, nil
}

func (l *LambdaInvoker) Invoke(ctx context.Context, name string, payload interface{}, version string) (interface{}, error) {
	req, err := buildInvokerRequest(name, payload, version)
	if err != nil {
		return nil, err
	}

	input := &awslambda.InvokeInput{
		FunctionName: aws.String(req.FunctionName),
		Payload:      req.Payload,
		Qualifier:    aws.String(req.Qualifier),
	}

	output, err := l.client.InvokeWithContext(ctx, input)
	if err != nil {
		return nil, Internal("lambda invoke failed", err)
	}
	if output.FunctionError != nil {
		return nil, Internal(fmt.Sprintf("lambda function error: %s", *output.FunctionError), nil)
	}

	var result interface{}
	if err := json.Unmarshal(output.Payload, &result); err != nil {
		return nil, Internal("lambda returned non-JSON payload", err)
	}
	return result, nil
}
