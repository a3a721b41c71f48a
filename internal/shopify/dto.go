package shopify

import "encoding/json"

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type UserError struct {
	Field   []string `json:"field,omitempty"`
	Message string   `json:"message"`
}

type pageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type bulkOperationNode struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Type        string `json:"type,omitempty"`
	ErrorCode   string `json:"errorCode,omitempty"`
	ObjectCount string `json:"objectCount,omitempty"`
	URL         string `json:"url,omitempty"`
}

type bulkOperationRunQueryData struct {
	BulkOperationRunQuery struct {
		BulkOperation *bulkOperationNode `json:"bulkOperation"`
		UserErrors    []UserError        `json:"userErrors"`
	} `json:"bulkOperationRunQuery"`
}

type bulkOperationRunMutationData struct {
	BulkOperationRunMutation struct {
		BulkOperation *bulkOperationNode `json:"bulkOperation"`
		UserErrors    []UserError        `json:"userErrors"`
	} `json:"bulkOperationRunMutation"`
}

type bulkOperationCancelData struct {
	BulkOperationCancel struct {
		BulkOperation *bulkOperationNode `json:"bulkOperation"`
		UserErrors    []UserError        `json:"userErrors"`
	} `json:"bulkOperationCancel"`
}

type currentBulkOperationData struct {
	CurrentBulkOperation *bulkOperationNode `json:"currentBulkOperation"`
}

type nodeBulkOperationData struct {
	Node *bulkOperationNode `json:"node"`
}

type productVariantsPageData struct {
	ProductVariants struct {
		PageInfo pageInfo `json:"pageInfo"`
		Nodes    []struct {
			ID             string  `json:"id"`
			SKU            *string `json:"sku"`
			Price          string  `json:"price"`
			CompareAtPrice *string `json:"compareAtPrice"`
			Product        struct {
				ID string `json:"id"`
			} `json:"product"`
		} `json:"nodes"`
	} `json:"productVariants"`
}

type stagedUploadsCreateData struct {
	StagedUploadsCreate struct {
		StagedTargets []struct {
			URL         string `json:"url"`
			ResourceURL string `json:"resourceUrl"`
			Parameters  []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"parameters"`
		} `json:"stagedTargets"`
		UserErrors []UserError `json:"userErrors"`
	} `json:"stagedUploadsCreate"`
}

type activeSubscriptionsData struct {
	CurrentAppInstallation struct {
		ActiveSubscriptions []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Status    string `json:"status"`
			CreatedAt string `json:"createdAt"`
		} `json:"activeSubscriptions"`
	} `json:"currentAppInstallation"`
}
