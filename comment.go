package reinfer

import (
	"encoding/json"
	"time"
)

// reserved user property names; the backend owns these keys.
var reservedPropertyNames = map[string]struct{}{
	"conversation": {},
	"title":        {},
	"Source":       {},
}

// Property is a single piece of typed metadata attached to a [Comment].
//
// Properties are not used for predictions; they are displayed on the
// platform and enable filtering, segmentation and statistics. The two
// implementations are [NumberProperty] and [StringProperty]; the union is
// closed, callers cannot add their own property kinds.
type Property interface {
	// PropertyName returns the user-visible name of the property.
	PropertyName() string

	// wireEntry returns the prefixed wire key and JSON value.
	// Unexported to keep the union closed.
	wireEntry() (key string, value any)
}

// NumberProperty is numeric comment metadata, e.g. an NPS score or an
// order value.
type NumberProperty struct {
	Name  string
	Value float64
}

// PropertyName returns the property's name.
func (p NumberProperty) PropertyName() string { return p.Name }

func (p NumberProperty) wireEntry() (string, any) { return "number:" + p.Name, p.Value }

// StringProperty is string comment metadata, e.g. a platform label or a
// username.
type StringProperty struct {
	Name  string
	Value string
}

// PropertyName returns the property's name.
func (p StringProperty) PropertyName() string { return p.Name }

func (p StringProperty) wireEntry() (string, any) { return "string:" + p.Name, p.Value }

// Comment represents a single verbatim on the platform: one piece of
// feedback text or a conversation transcript, with a distinguished
// timestamp and optional metadata.
//
// Its fields are:
//
//   - ID: a unique, hex, client-chosen identifier. It should correspond to
//     an identifier in the data source, so that re-uploading the same
//     comment twice is idempotent.
//   - Timestamp: used on the platform for timeseries and filters. It should
//     be the closest thing available to the date of collection.
//   - Verbatim: the free-form feedback or survey response text.
//   - UserProperties: client-specific metadata; names must not collide with
//     the reserved names "conversation", "title" and "Source".
type Comment struct {
	ID             string
	Timestamp      time.Time
	Verbatim       string
	UserProperties []Property
}

// wireComment is the JSON shape the sync endpoint accepts.
type wireComment struct {
	ID             string         `json:"id"`
	Timestamp      string         `json:"timestamp"`
	OriginalText   string         `json:"original_text"`
	UserProperties map[string]any `json:"user_properties"`
}

// encodeComment validates a comment and flattens it into its wire form,
// injecting sourceName as the reserved "string:Source" property.
//
// Validation happens here, before any network call: a reserved property
// name yields a KindValidation error and nothing is sent.
func encodeComment(sourceName string, c Comment) (wireComment, error) {
	props := make(map[string]any, len(c.UserProperties)+1)
	for _, p := range c.UserProperties {
		if _, reserved := reservedPropertyNames[p.PropertyName()]; reserved {
			return wireComment{}, newError(KindValidation,
				"reserved user property name %q", p.PropertyName())
		}
		key, value := p.wireEntry()
		props[key] = value
	}
	props["string:Source"] = sourceName

	return wireComment{
		ID:             c.ID,
		Timestamp:      c.Timestamp.Format(time.RFC3339Nano),
		OriginalText:   c.Verbatim,
		UserProperties: props,
	}, nil
}

// decodeComment rebuilds a [Comment] from its wire form. The "string:Source"
// entry is dropped: it belongs to the batch, not the comment.
func decodeComment(w wireComment) (Comment, error) {
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return Comment{}, wrapError(KindBackend, err, "invalid comment timestamp %q", w.Timestamp)
	}

	var props []Property
	for key, value := range w.UserProperties {
		if key == "string:Source" {
			continue
		}
		switch {
		case len(key) > 7 && key[:7] == "string:":
			s, ok := value.(string)
			if !ok {
				return Comment{}, newError(KindBackend, "property %q is not a string", key)
			}
			props = append(props, StringProperty{Name: key[7:], Value: s})
		case len(key) > 7 && key[:7] == "number:":
			n, ok := value.(float64)
			if !ok {
				if j, isNum := value.(json.Number); isNum {
					f, err := j.Float64()
					if err != nil {
						return Comment{}, wrapError(KindBackend, err, "property %q is not numeric", key)
					}
					n = f
				} else {
					return Comment{}, newError(KindBackend, "property %q is not numeric", key)
				}
			}
			props = append(props, NumberProperty{Name: key[7:], Value: n})
		default:
			return Comment{}, newError(KindBackend, "unrecognised property key %q", key)
		}
	}

	return Comment{
		ID:             w.ID,
		Timestamp:      ts,
		Verbatim:       w.OriginalText,
		UserProperties: props,
	}, nil
}
