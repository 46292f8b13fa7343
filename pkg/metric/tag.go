package metric

// Tag constants
const (
	TagEnv            = "env"
	TagService        = "service"
	TagPath           = "path"
	TagMethod         = "method"
	TagHttpStatusCode = "http_status_code"
	TagPool           = "pool"
	TagEndpoint       = "endpoint"
	TagEndpointType   = "endpoint_type"
	TagReason         = "reason"

	TagValueReasonWornOut   = "worn_out"
	TagValueReasonIdle      = "idle"
	TagValueReasonKilled    = "killed"
	TagValueReasonUnhealthy = "unhealthy"
	TagValueReasonShutdown  = "shutdown"
)

type Tag struct {
	Name  string
	Value string
}

func NewTag(name, value string) Tag {
	return Tag{
		Name:  name,
		Value: value,
	}
}

// BuildTag builds a tag from the given name and value
func BuildTag(tags ...Tag) []string {
	allTags := make([]string, 0)
	for _, tag := range tags {
		allTags = append(allTags, TagAsString(tag.Name, tag.Value))
	}
	return allTags
}

func TagAsString(name string, value string) string {
	return name + ":" + value
}

func UpdateTags(tags *[]string, newTags ...Tag) {
	for _, tag := range newTags {
		*tags = append(*tags, TagAsString(tag.Name, tag.Value))
	}
}
