package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/domain/entities"
	"github.com/sonora-voice/bridge/domain/repositories"
	"github.com/sonora-voice/bridge/internal/protocol"
)

// Stores bundles the backends the default tool set reads from.
type Stores struct {
	Knowledge repositories.KnowledgeBase
	Customers repositories.CustomerStore
	Profiles  repositories.ProfileStore
}

// RegisterDefaults installs the built-in conversational tools. Tools that
// lack a backing store answer with a not-found style message rather than
// failing, so a partially wired deployment still converses.
func RegisterDefaults(registry *Registry, stores Stores, logger *zap.Logger) {
	registry.Register(protocol.ToolSpec{
		Name:        "getProductInfo",
		Description: "Look up product and plan information from the knowledge base",
		InputSchema: objectSchema(map[string]string{
			"query": "the product question to search for",
		}),
	}, productInfoHandler(stores.Knowledge, logger))

	registry.Register(protocol.ToolSpec{
		Name:        "getOrderStatus",
		Description: "Get the order status and next action for a customer by name",
		InputSchema: objectSchema(map[string]string{
			"customerName": "full name of the customer",
		}),
	}, orderStatusHandler(stores.Customers))

	registry.Register(protocol.ToolSpec{
		Name:        "getLabResults",
		Description: "Get the latest lab results for a customer by name",
		InputSchema: objectSchema(map[string]string{
			"customerName": "full name of the customer",
		}),
	}, labResultsHandler(stores.Customers))

	registry.Register(protocol.ToolSpec{
		Name:        "getUserProfile",
		Description: "Look up an account profile by phone number",
		InputSchema: objectSchema(map[string]string{
			"phoneNumber": "the caller's phone number, digits and dashes accepted",
		}),
	}, userProfileHandler(stores.Profiles, logger))

	registry.Register(protocol.ToolSpec{
		Name:        "transferToLiveAgent",
		Description: "Hand the conversation over to a human agent",
		InputSchema: objectSchema(map[string]string{
			"customerName": "name of the customer being transferred",
		}),
	}, transferHandler())
}

// resultOf wraps a payload in the single-key result object the model
// expects back from every tool.
func resultOf(v any) map[string]any {
	return map[string]any{"result": v}
}

func productInfoHandler(kb repositories.KnowledgeBase, logger *zap.Logger) Handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var args struct {
			Query string `json:"query"`
		}
		_ = json.Unmarshal(input, &args)
		query := args.Query
		if query == "" {
			query = "bad query"
		}

		if kb == nil {
			return resultOf(&entities.KnowledgeAnswer{Query: query, Results: []entities.KnowledgeResult{}}), nil
		}

		answer, err := kb.Search(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("knowledge base lookup: %w", err)
		}
		logger.Info("Knowledge base lookup",
			zap.String("query", query),
			zap.Int("resultCount", answer.ResultCount))
		return resultOf(answer), nil
	}
}

func orderStatusHandler(customers repositories.CustomerStore) Handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var args struct {
			CustomerName string `json:"customerName"`
		}
		_ = json.Unmarshal(input, &args)
		if args.CustomerName == "" {
			return resultOf("Customer not found. Ask for the customer name."), nil
		}

		customer, err := lookupCustomer(ctx, customers, args.CustomerName)
		if err != nil {
			return nil, err
		}
		if customer == nil {
			return resultOf("No orders found for the customer."), nil
		}
		return resultOf(fmt.Sprintf("Order Status: %s , Action : %s", customer.OrderStatus, customer.Action)), nil
	}
}

func labResultsHandler(customers repositories.CustomerStore) Handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var args struct {
			CustomerName string `json:"customerName"`
		}
		_ = json.Unmarshal(input, &args)
		if args.CustomerName == "" {
			return resultOf("No customer found. Ask for the customer name."), nil
		}

		customer, err := lookupCustomer(ctx, customers, args.CustomerName)
		if err != nil {
			return nil, err
		}
		if customer == nil || customer.LabResult == "" {
			return resultOf("No lab results found."), nil
		}
		return resultOf(customer.LabResult), nil
	}
}

func userProfileHandler(profiles repositories.ProfileStore, logger *zap.Logger) Handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		var args struct {
			PhoneNumber string `json:"phoneNumber"`
		}
		_ = json.Unmarshal(input, &args)
		if args.PhoneNumber == "" {
			return map[string]any{"error": "No phone number provided"}, nil
		}

		clean := sanitizePhone(args.PhoneNumber)
		if clean == "" {
			return map[string]any{"error": "Invalid phone number format"}, nil
		}

		if profiles != nil {
			profile, err := profiles.GetByPhone(ctx, clean)
			if err == nil {
				return map[string]any{
					"phone_number": args.PhoneNumber,
					"clean_number": clean,
					"found":        true,
					"data":         profile,
				}, nil
			}
			if err != repositories.ErrNotFound {
				return nil, fmt.Errorf("profile lookup: %w", err)
			}
			logger.Info("No profile entry for phone number")
		}

		return map[string]any{
			"status":       "error",
			"phone_number": args.PhoneNumber,
			"response": fmt.Sprintf(
				"Sorry we couldn't locate you in our records with phone# %s. Could you please check your details again?",
				args.PhoneNumber),
		}, nil
	}
}

func transferHandler() Handler {
	return func(ctx context.Context, input json.RawMessage) (any, error) {
		return resultOf("Transferring customer to live agent."), nil
	}
}

func lookupCustomer(ctx context.Context, customers repositories.CustomerStore, name string) (*entities.Customer, error) {
	if customers == nil {
		return nil, nil
	}
	customer, err := customers.GetByName(ctx, name)
	if err == repositories.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("customer lookup: %w", err)
	}
	return customer, nil
}

// sanitizePhone strips dashes and spaces; returns "" unless the remainder
// is all digits.
func sanitizePhone(raw string) string {
	clean := strings.NewReplacer("-", "", " ", "", "(", "", ")", "", "+", "").Replace(strings.TrimSpace(raw))
	for _, r := range clean {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return clean
}

// objectSchema renders a flat JSON schema with string properties, which is
// all the built-in tools need.
func objectSchema(props map[string]string) json.RawMessage {
	properties := make(map[string]any, len(props))
	required := make([]string, 0, len(props))
	for name, desc := range props {
		properties[name] = map[string]string{"type": "string", "description": desc}
		required = append(required, name)
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
	data, _ := json.Marshal(schema)
	return data
}
