package model

import "strings"

// WebhookDescriptor is a vendor push subscription. ID is assigned by the
// vendor and is ignored by Equal; URL is the match key used to find an
// existing registration.
type WebhookDescriptor struct {
	ID             string            `json:"id,omitempty"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Encoding       string            `json:"encoding"`
	Events         []string          `json:"events"`
	Headers        map[string]string `json:"headers,omitempty"`
	Template       string            `json:"template,omitempty"`
	ConnectTimeout int               `json:"connect_timeout"`
	ReadTimeout    int               `json:"read_timeout"`
	RetryCount     int               `json:"retries"`
}

// Equal compares everything except ID and URL.
func (d WebhookDescriptor) Equal(o WebhookDescriptor) bool {
	return strings.EqualFold(d.Method, o.Method) &&
		strings.EqualFold(d.Encoding, o.Encoding) &&
		d.Template == o.Template &&
		d.ConnectTimeout == o.ConnectTimeout &&
		d.ReadTimeout == o.ReadTimeout &&
		d.RetryCount == o.RetryCount &&
		SameSet(d.Events, o.Events) &&
		SameHeaders(d.Headers, o.Headers)
}

// SameSet compares two string slices as unordered sets. Duplicates collapse.
func SameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, v := range a {
		as[v] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, v := range b {
		bs[v] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for v := range as {
		if _, ok := bs[v]; !ok {
			return false
		}
	}
	return true
}

// SameHeaders compares header maps with case-insensitive keys and exact values.
func SameHeaders(a, b map[string]string) bool {
	na := foldKeys(a)
	nb := foldKeys(b)
	if len(na) != len(nb) {
		return false
	}
	for k, v := range na {
		if w, ok := nb[k]; !ok || w != v {
			return false
		}
	}
	return true
}

func foldKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
