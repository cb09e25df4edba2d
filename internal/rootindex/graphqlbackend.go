package rootindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ar-io/gatewaycore/internal/types"
)

// MaxBundleNestingDepth bounds the upward bundledIn.id walk, guarding
// against a misbehaving index returning a cycle.
const MaxBundleNestingDepth = 10

const bundledInQuery = `query($id: ID!) {
  transaction(id: $id) {
    id
    bundledIn {
      id
    }
  }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data struct {
		Transaction *struct {
			ID        string `json:"id"`
			BundledIn *struct {
				ID string `json:"id"`
			} `json:"bundledIn"`
		} `json:"transaction"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// GraphQLBackend answers root-tx lookups by walking transaction.bundledIn.id
// upward until it reaches a transaction with no parent.
// This backend cannot itself answer the byte-offset half of the question, so
// it always returns an incomplete record, letting the CDB or gateway-header
// backend supply offsets if CompositeIndex consults them too.
type GraphQLBackend struct {
	endpoint string
	client   *http.Client
	maxDepth int
	log      *logrus.Entry
}

// NewGraphQLBackend wires a GraphQL endpoint (e.g. an ar.io gateway's
// /graphql) as a root-index backend. It issues a single fixed bundledIn
// query document, so plain net/http + encoding/json carry it; content type
// and size metadata are not queried.
func NewGraphQLBackend(endpoint string, client *http.Client, log *logrus.Logger) *GraphQLBackend {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logrus.New()
	}
	return &GraphQLBackend{
		endpoint: endpoint,
		client:   client,
		maxDepth: MaxBundleNestingDepth,
		log:      log.WithField("component", "rootindex.graphql"),
	}
}

func (b *GraphQLBackend) Name() string { return "graphql" }

func (b *GraphQLBackend) GetRootTx(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error) {
	current := id
	visited := make(map[types.Identifier]bool, b.maxDepth)

	for depth := 0; depth < b.maxDepth; depth++ {
		if visited[current] {
			return nil, types.Wrap(types.VerificationFailed, "rootindex.GraphQLBackend.GetRootTx", errCycleDetected)
		}
		visited[current] = true

		parent, err := b.queryParent(ctx, current)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			// current has no bundledIn parent: it is itself the root tx.
			return &types.RootTxRecord{RootTxID: current, Complete: false}, nil
		}
		current = *parent
	}

	return nil, types.Wrap(types.VerificationFailed, "rootindex.GraphQLBackend.GetRootTx", errDepthExceeded)
}

func (b *GraphQLBackend) queryParent(ctx context.Context, id types.Identifier) (*types.Identifier, error) {
	body, err := json.Marshal(graphqlRequest{
		Query:     bundledInQuery,
		Variables: map[string]any{"id": id.String()},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, types.Wrap(types.NetworkError, "rootindex.GraphQLBackend.queryParent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.Wrap(types.NetworkError, "rootindex.GraphQLBackend.queryParent", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var parsed graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, types.Wrap(types.NetworkError, "rootindex.GraphQLBackend.queryParent", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, types.Wrap(types.NetworkError, "rootindex.GraphQLBackend.queryParent", fmt.Errorf("graphql error: %s", parsed.Errors[0].Message))
	}
	if parsed.Data.Transaction == nil {
		return nil, types.Wrap(types.NotFound, "rootindex.GraphQLBackend.queryParent", errNotFound)
	}
	if parsed.Data.Transaction.BundledIn == nil {
		return nil, nil
	}

	parentID, err := types.ParseIdentifier(parsed.Data.Transaction.BundledIn.ID)
	if err != nil {
		return nil, types.Wrap(types.InvalidInput, "rootindex.GraphQLBackend.queryParent", err)
	}
	return &parentID, nil
}
