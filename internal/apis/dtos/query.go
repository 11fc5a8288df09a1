package dtos

type ExecuteQueryRequest struct {
	SQL string `json:"sql" binding:"required"`

	// Trusted marks gateway-generated statements, which get a lenient
	// re-validation when the strict pass rejects them. End-user input must
	// never set this.
	Trusted bool `json:"trusted,omitempty"`
}

type ExecuteQueryResponse struct {
	ExecutionResult interface{} `json:"execution_result"`
	Error           *QueryError `json:"error,omitempty"`
}
