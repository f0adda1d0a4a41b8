package notification_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/notification"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

type slowProvider struct{}

func (slowProvider) Name() string { return "slow" }

func (slowProvider) Send(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

var _ = Describe("FormatVendMessage", func() {
	It("should render the payer-facing vend message", func() {
		msg := notification.FormatVendMessage("MTR001", "12345678901234567890", decimal.NewFromInt(10))

		Expect(msg).To(Equal("SmartWater Vending\nMeter: MTR001\nUnits: 10.00\nToken: 12345678901234567890\nThank you for using SmartWater!"))
	})
})

var _ = Describe("Service", func() {
	var (
		mock    *notification.MockProvider
		service *notification.Service
		ctx     context.Context
	)

	BeforeEach(func() {
		mock = notification.NewMockProvider(logger.Discard())
		service = notification.NewService(mock, time.Second, logger.Discard())
		ctx = context.Background()
	})

	It("should record a vend notification with phone and token", func() {
		// When
		ok := service.NotifyVend(ctx, "254700000000", "111122223333", decimal.RequireFromString("5.5"), "MTR001")

		// Then
		Expect(ok).To(BeTrue())
		sent := mock.Sent()
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].To).To(Equal("254700000000"))
		Expect(sent[0].Body).To(ContainSubstring("Token: 111122223333"))
		Expect(sent[0].Body).To(ContainSubstring("Units: 5.50"))
	})

	It("should report provider failures as false without panicking", func() {
		mock.FailWith(errors.New("gateway down"))

		Expect(service.Send(ctx, "254700000000", "hello")).To(BeFalse())
		Expect(mock.Sent()).To(BeEmpty())
	})

	It("should bound a hanging provider by the timeout", func() {
		// Given
		service = notification.NewService(slowProvider{}, 20*time.Millisecond, logger.Discard())

		// When
		start := time.Now()
		ok := service.Send(ctx, "254700000000", "hello")

		// Then
		Expect(ok).To(BeFalse())
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})

	It("should send bulk messages and report partial failure", func() {
		// Given
		service = notification.NewService(mock, time.Second, logger.Discard(), notification.WithBulkRate(1000))
		messages := []notification.Message{{To: "254700000001", Body: "a"}, {To: "254700000002", Body: "b"}}

		// When / Then
		Expect(service.SendBulk(ctx, messages)).To(BeTrue())
		Expect(mock.Sent()).To(HaveLen(2))

		mock.FailWith(notification.ErrMockFailure)
		Expect(service.SendBulk(ctx, messages)).To(BeFalse())
	})
})

var _ = Describe("HTTP providers", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Twilio", func() {
		It("should post the message with basic auth and accept 201", func() {
			// Given
			handler = func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.URL.Path).To(Equal("/2010-04-01/Accounts/AC123/Messages.json"))
				user, pass, ok := r.BasicAuth()
				Expect(ok).To(BeTrue())
				Expect(user).To(Equal("AC123"))
				Expect(pass).To(Equal("secret"))
				Expect(r.ParseForm()).To(Succeed())
				Expect(r.PostForm.Get("To")).To(Equal("+254700000000"))
				Expect(r.PostForm.Get("From")).To(Equal("+15005550006"))
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{"sid":"SM1"}`))
			}
			p := notification.NewTwilioProvider(server.URL, "AC123", "secret", "+15005550006", server.Client())

			// When / Then
			Expect(p.Send(ctx, "+254700000000", "hi")).To(Succeed())
		})

		It("should surface API errors", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"code":21211,"message":"invalid To"}`))
			}
			p := notification.NewTwilioProvider(server.URL, "AC123", "secret", "+1", server.Client())

			Expect(p.Send(ctx, "bad", "hi")).To(MatchError(ContainSubstring("invalid To")))
		})
	})

	Describe("Africa's Talking", func() {
		It("should send with the api key header and accept Success recipients", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.URL.Path).To(Equal("/version1/messaging"))
				Expect(r.Header.Get("apiKey")).To(Equal("key"))
				Expect(r.ParseForm()).To(Succeed())
				Expect(r.PostForm.Get("username")).To(Equal("sandbox"))
				Expect(r.PostForm.Get("from")).To(Equal("SMARTWATER"))
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{"SMSMessageData":{"Message":"Sent to 1/1","Recipients":[{"statusCode":101,"number":"+254700000000","status":"Success","messageId":"ATX"}]}}`))
			}
			p := notification.NewAfricasTalkingProvider(server.URL, "sandbox", "key", "SMARTWATER", server.Client())

			Expect(p.Send(ctx, "+254700000000", "hi")).To(Succeed())
		})

		It("should fail when a recipient is rejected", func() {
			handler = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{"SMSMessageData":{"Message":"Sent to 0/1","Recipients":[{"statusCode":403,"number":"+254700000000","status":"InvalidPhoneNumber"}]}}`))
			}
			p := notification.NewAfricasTalkingProvider(server.URL, "sandbox", "key", "", server.Client())

			Expect(p.Send(ctx, "+254700000000", "hi")).To(MatchError(ContainSubstring("InvalidPhoneNumber")))
		})
	})

	Describe("Mobizon", func() {
		It("should treat code 0 as delivered and anything else as failure", func() {
			var calls int32
			handler = func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				Expect(r.ParseForm()).To(Succeed())
				Expect(r.PostForm.Get("recipient")).To(Equal("254700000000"))
				if atomic.AddInt32(&calls, 1) == 1 {
					w.Write([]byte(`{"code":0,"message":""}`))
					return
				}
				w.Write([]byte(`{"code":1,"message":"insufficient balance"}`))
			}
			p := notification.NewMobizonProvider(server.URL, "key", "", server.Client())

			Expect(p.Send(ctx, "+254700000000", "hi")).To(Succeed())
			Expect(p.Send(ctx, "+254700000000", "hi")).To(MatchError(ContainSubstring("insufficient balance")))
		})
	})
})

var _ = Describe("NewProvider", func() {
	DescribeTable("selects the configured provider",
		func(name, expected string) {
			p, err := notification.NewProvider(internal.SMSConfig{Provider: name, Timeout: time.Second}, nil, logger.Discard())
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name()).To(Equal(expected))
		},
		Entry("default", "", notification.ProviderMock),
		Entry("mock", "mock", notification.ProviderMock),
		Entry("twilio", "twilio", notification.ProviderTwilio),
		Entry("africastalking", "AfricasTalking", notification.ProviderAfricasTalking),
		Entry("mobizon", "mobizon", notification.ProviderMobizon),
	)

	It("should reject unknown providers", func() {
		_, err := notification.NewProvider(internal.SMSConfig{Provider: "carrier-pigeon"}, nil, logger.Discard())
		Expect(err).To(MatchError(ContainSubstring("carrier-pigeon")))
	})
})
