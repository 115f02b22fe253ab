package pegabot

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Payload is a successful /botometer response. It is stored verbatim in the
// response cache and in job checkpoints.
type Payload struct {
	Profiles    []Profile    `json:"profiles"`
	TwitterData *TwitterData `json:"twitter_data,omitempty"`
	RateLimit   *RateLimit   `json:"rate_limit,omitempty"`
}

// Profile is the scoring block for one account.
type Profile struct {
	Username            string              `json:"username,omitempty"`
	URL                 string              `json:"url,omitempty"`
	Avatar              string              `json:"avatar,omitempty"`
	BotProbability      BotProbability      `json:"bot_probability"`
	LanguageIndependent LanguageIndependent `json:"language_independent"`
	LanguageDependent   *LanguageDependent  `json:"language_dependent,omitempty"`
}

type BotProbability struct {
	All *float64 `json:"all"`
}

type LanguageIndependent struct {
	User     *float64 `json:"user,omitempty"`
	Friend   *float64 `json:"friend,omitempty"`
	Temporal *float64 `json:"temporal,omitempty"`
	Network  *float64 `json:"network,omitempty"`
}

type LanguageDependent struct {
	Sentiment *struct {
		Value *float64 `json:"value,omitempty"`
	} `json:"sentiment,omitempty"`
}

// TwitterData is the raw account metadata the API looked up.
type TwitterData struct {
	UserID       Text  `json:"user_id"`
	UserName     Text  `json:"user_name"`
	CreatedAt    Text  `json:"created_at"`
	Following    Count `json:"following"`
	Followers    Count `json:"followers"`
	NumberTweets Count `json:"number_tweets"`
	Hashtags     Tags  `json:"hashtags"`
	Mentions     Tags  `json:"mentions"`
	UsedCache    bool  `json:"usedCache"`
}

// RateLimit is the API's quota block. ToReset is in the API's reset unit.
// Remaining is nil when the block omits it; that is not a zero quota.
type RateLimit struct {
	Remaining *Count `json:"remaining"`
	ToReset   Count  `json:"toReset"`
}

// Known returns the remaining call count when the API reported one.
func (r *RateLimit) Known() (int, bool) {
	if r == nil || r.Remaining == nil {
		return 0, false
	}
	return int(*r.Remaining), true
}

// Score returns the first profile's total bot probability.
func (p *Payload) Score() (float64, bool) {
	if p == nil || len(p.Profiles) == 0 || p.Profiles[0].BotProbability.All == nil {
		return 0, false
	}
	return *p.Profiles[0].BotProbability.All, true
}

// Sentiment returns the language dependent sentiment score, if any.
func (p Profile) Sentiment() *float64 {
	if p.LanguageDependent == nil || p.LanguageDependent.Sentiment == nil {
		return nil
	}
	return p.LanguageDependent.Sentiment.Value
}

// Text accepts a JSON string or number. User ids come back as either.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}

// Count accepts a JSON number or a numeric string.
type Count int64

func (c *Count) UnmarshalJSON(b []byte) error {
	var t Text
	if err := t.UnmarshalJSON(b); err != nil {
		return err
	}
	s := strings.TrimSpace(string(t))
	if s == "" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*c = Count(f)
	return nil
}

// Tags accepts a JSON array of strings or a single string.
type Tags []string

func (t *Tags) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var items []Text
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			out = append(out, string(it))
		}
		*t = out
		return nil
	}
	var s Text
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if s == "" {
		*t = nil
		return nil
	}
	*t = Tags{string(s)}
	return nil
}

// String joins tags the way the result spreadsheet shows them.
func (t Tags) String() string {
	return strings.Join(t, ", ")
}
