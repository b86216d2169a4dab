package filterservice

// DefaultEndpoint is the route prefix of a locally running filtering service.
const DefaultEndpoint = "http://localhost:5000/apply_filter"

// DefaultTimeout bounds one request/response exchange, in seconds.
const DefaultTimeout = 60

// FilterRequest is the JSON body posted to /{filter_key}.
type FilterRequest struct {
	Image      string `json:"image"`
	KernelSize *int   `json:"kernel_size,omitempty"`
}

// FilterResponse covers both success ({filtered_image}) and failure ({error}) bodies.
type FilterResponse struct {
	FilteredImage string `json:"filtered_image,omitempty"`
	Error         string `json:"error,omitempty"`
}
