package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/wolfman30/retirement-leads-platform/pkg/logging"
)

func noBackoff(int) time.Duration { return 0 }

type fakeMessageAPI struct {
	errs   []error
	calls  int
	params []*twilioapi.CreateMessageParams
}

func (f *fakeMessageAPI) CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error) {
	f.calls++
	f.params = append(f.params, params)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	sid := "SM1"
	return &twilioapi.ApiV2010Message{Sid: &sid}, nil
}

func TestTwilioSenderCreatesMessage(t *testing.T) {
	api := &fakeMessageAPI{}
	s := newTwilioSender(api, "AC123", "+15550001111", logging.Nop())
	s.backoff = noBackoff

	require.NoError(t, s.SendSMS(context.Background(), "+18587524266", "hello"))
	require.Equal(t, 1, api.calls)
	p := api.params[0]
	assert.Equal(t, "AC123", *p.PathAccountSid)
	assert.Equal(t, "+18587524266", *p.To)
	assert.Equal(t, "+15550001111", *p.From)
	assert.Equal(t, "hello", *p.Body)
}

func TestTwilioSenderDoesNotRetryClientErrors(t *testing.T) {
	api := &fakeMessageAPI{errs: []error{&twilioclient.TwilioRestError{
		Status:  http.StatusBadRequest,
		Code:    21211,
		Message: "Invalid 'To' Phone Number",
	}}}
	s := newTwilioSender(api, "AC123", "+15550001111", logging.Nop())
	s.backoff = noBackoff

	err := s.SendSMS(context.Background(), "+18587524266", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 21211")
	assert.Equal(t, 1, api.calls)
}

func TestTwilioSenderRetriesThrottling(t *testing.T) {
	api := &fakeMessageAPI{errs: []error{
		&twilioclient.TwilioRestError{Status: http.StatusTooManyRequests, Code: 20429, Message: "Too Many Requests"},
		errors.New("connection reset"),
	}}
	s := newTwilioSender(api, "AC123", "+15550001111", logging.Nop())
	s.backoff = noBackoff

	require.NoError(t, s.SendSMS(context.Background(), "+18587524266", "hello"))
	assert.Equal(t, 3, api.calls)
}

func TestTelnyxSenderRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer KEY", r.Header.Get("Authorization"))
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "+18587524266", payload["to"])
		assert.Equal(t, "profile-1", payload["messaging_profile_id"])
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"msg-1"}}`))
	}))
	defer srv.Close()

	s := NewTelnyxSender("KEY", "profile-1", "+15550001111", logging.Nop())
	s.endpoint = srv.URL
	s.backoff = noBackoff

	require.NoError(t, s.SendSMS(context.Background(), "+18587524266", "code 123456"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendersValidateInput(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, NewTwilioSender("", "", "+1", logging.Nop()).SendSMS(ctx, "+1", "x"))
	assert.Error(t, NewTelnyxSender("KEY", "", "", logging.Nop()).SendSMS(ctx, "+18587524266", "x"))
	assert.Error(t, NewTelnyxSender("KEY", "", "+1555", logging.Nop()).SendSMS(ctx, "+18587524266", "  "))
}

type stubSender struct {
	err   error
	calls int
}

func (s *stubSender) SendSMS(context.Context, string, string) error {
	s.calls++
	return s.err
}

func TestFailoverSender(t *testing.T) {
	primary := &stubSender{err: errors.New("primary down")}
	secondary := &stubSender{}
	f := NewFailoverSender(primary, "telnyx", secondary, "twilio", logging.Nop())

	require.NoError(t, f.SendSMS(context.Background(), "+18587524266", "hi"))
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)

	secondary.err = errors.New("secondary down")
	err := f.SendSMS(context.Background(), "+18587524266", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary down")
	assert.Contains(t, err.Error(), "secondary down")
}

func TestBuildSMSSender(t *testing.T) {
	full := ProviderSelectionConfig{
		TelnyxAPIKey:     "KEY",
		TelnyxFromNumber: "+15550001111",
		TwilioAccountSID: "AC1",
		TwilioAuthToken:  "tok",
		TwilioFromNumber: "+15550002222",
	}

	sender, name, reason := BuildSMSSender(full, logging.Nop())
	require.NotNil(t, sender)
	assert.Equal(t, "telnyx+twilio", name)
	assert.Empty(t, reason)
	assert.IsType(t, &FailoverSender{}, sender)

	full.Preference = "twilio"
	sender, name, _ = BuildSMSSender(full, logging.Nop())
	assert.IsType(t, &TwilioSender{}, sender)
	assert.Equal(t, "twilio", name)

	sender, _, reason = BuildSMSSender(ProviderSelectionConfig{Preference: "telnyx"}, logging.Nop())
	assert.Nil(t, sender)
	assert.Contains(t, reason, "TELNYX_API_KEY missing")

	sender, _, reason = BuildSMSSender(ProviderSelectionConfig{}, logging.Nop())
	assert.Nil(t, sender)
	assert.Contains(t, reason, "TWILIO_ACCOUNT_SID missing")

	_, _, reason = BuildSMSSender(ProviderSelectionConfig{Preference: "pigeon"}, logging.Nop())
	assert.Contains(t, reason, "unknown SMS provider")
}
