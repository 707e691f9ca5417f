package workflow

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/SaiNageswarS/go-api-boot/logger"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const EscalationFunction = "email_escalation"

// Answer is the structured reply the model returns at every step.
type Answer struct {
	Answer          string `json:"answer"`
	ContextTicketID string `json:"context_ticket_id"`
	FunctionCall    string `json:"function_call,omitempty"`
}

type DecisionKind int

const (
	DecisionAnswer DecisionKind = iota
	DecisionEscalate
)

// Decision is a decoded model reply: a plain answer or an escalation request.
type Decision struct {
	Kind   DecisionKind
	Answer Answer
}

//go:embed answer.schema.json
var answerSchemaJSON string

var answerSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(answerSchemaJSON))
	if err != nil {
		panic(err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("answer.schema.json", doc); err != nil {
		panic(err)
	}
	return c.MustCompile("answer.schema.json")
}

// DecodeAnswer validates raw model output against the answer schema. Output that is
// not a matching JSON object is an upstream format error; it is never repaired.
func DecodeAnswer(raw string) (Decision, error) {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		logger.Error("Model returned invalid JSON", zap.String("raw", raw), zap.Error(err))
		return Decision{}, status.Error(codes.DataLoss, "model response is not valid JSON")
	}
	if err := answerSchema.Validate(inst); err != nil {
		logger.Error("Model response does not match answer schema", zap.String("raw", raw), zap.Error(err))
		return Decision{}, status.Error(codes.DataLoss, "model response does not match the answer format")
	}

	var answer Answer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		logger.Error("Failed to decode model answer", zap.String("raw", raw), zap.Error(err))
		return Decision{}, status.Error(codes.DataLoss, "model response does not match the answer format")
	}
	answer.ContextTicketID = strings.TrimSpace(answer.ContextTicketID)

	if answer.FunctionCall == EscalationFunction {
		return Decision{Kind: DecisionEscalate, Answer: answer}, nil
	}
	return Decision{Kind: DecisionAnswer, Answer: answer}, nil
}
