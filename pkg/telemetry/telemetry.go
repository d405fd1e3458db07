package telemetry

// Stub for standalone builds - enterprise deployments swap in an exporter
// that forwards compliance events. These no-ops satisfy imports.

type Client struct{}

var GlobalClient *Client = nil

func (c *Client) Track(event string, props map[string]interface{}) {}

// CountBlocked records a critical violation block.
func CountBlocked() { GlobalClient.track("output_blocked") }

// CountReview records an attorney review escalation.
func CountReview() { GlobalClient.track("attorney_review") }

func (c *Client) track(event string) {
	if c == nil {
		return
	}
	c.Track(event, nil)
}
