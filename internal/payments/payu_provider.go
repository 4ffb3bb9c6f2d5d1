package payments

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/Abdullah-Zzz/live-shopping-backend/internal/domain"
)

// PayULogger defines the logging contract for PayU provider operations.
type PayULogger func(ctx context.Context, event string, fields map[string]any)

const (
	// DefaultPayUTestURL is the sandbox payment endpoint.
	DefaultPayUTestURL = "https://test.payu.in/_payment"

	payuStatusSuccess = "success"
	payuStatusFailure = "failure"
)

// PayUProviderConfig configures the PayUProvider.
type PayUProviderConfig struct {
	MerchantKey string
	Salt        string
	PaymentURL  string
	SuccessURL  string
	FailureURL  string
	ProductInfo string
	Clock       func() time.Time
	Logger      PayULogger
}

// PayUProvider implements the Provider contract against the PayU hosted
// checkout. PayU has no Go SDK; the integration is the v1 form post with
// sha512 integrity hashes on both legs.
type PayUProvider struct {
	merchantKey string
	salt        string
	paymentURL  string
	successURL  string
	failureURL  string
	productInfo string
	clock       func() time.Time
	logger      PayULogger
}

// NewPayUProvider constructs a PayU Provider using the given configuration.
func NewPayUProvider(cfg PayUProviderConfig) (*PayUProvider, error) {
	key := strings.TrimSpace(cfg.MerchantKey)
	salt := strings.TrimSpace(cfg.Salt)
	if key == "" || salt == "" {
		return nil, errors.New("payu: merchant key and salt are required")
	}

	paymentURL := strings.TrimSpace(cfg.PaymentURL)
	if paymentURL == "" {
		paymentURL = DefaultPayUTestURL
	}
	productInfo := strings.TrimSpace(cfg.ProductInfo)
	if productInfo == "" {
		productInfo = "Order"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &PayUProvider{
		merchantKey: key,
		salt:        salt,
		paymentURL:  paymentURL,
		successURL:  strings.TrimSpace(cfg.SuccessURL),
		failureURL:  strings.TrimSpace(cfg.FailureURL),
		productInfo: productInfo,
		clock:       clock,
		logger:      logger,
	}, nil
}

// NewPayUTransactionID builds the gateway transaction ID carrying the order
// ID so the webhook can recover it.
func NewPayUTransactionID(orderID string, now time.Time) string {
	return fmt.Sprintf("PAYU_%s_%d", strings.TrimSpace(orderID), now.UnixMilli())
}

// OrderIDFromPayUTransactionID recovers the order ID embedded in the txnid.
// Order IDs may themselves contain underscores, so only the PAYU prefix and
// the trailing timestamp are stripped.
func OrderIDFromPayUTransactionID(txnid string) (string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(txnid), "PAYU_")
	if !ok {
		return "", fmt.Errorf("payu: malformed transaction id %q", txnid)
	}
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 {
		return "", fmt.Errorf("payu: malformed transaction id %q", txnid)
	}
	return rest[:idx], nil
}

// CreateCheckout returns the hosted form payload the client posts to PayU.
func (p *PayUProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if p == nil {
		return Checkout{}, errors.New("payu: provider is nil")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return Checkout{}, errors.New("payu: order id is required")
	}
	if req.Amount <= 0 {
		return Checkout{}, errors.New("payu: amount must be positive")
	}

	now := p.clock().UTC()
	txnid := NewPayUTransactionID(orderID, now)
	// PayU posts decimal major units ("499.00") in both the form and the hash.
	amount := domain.Money(req.Amount).MajorUnits(req.Currency)
	productInfo := strings.TrimSpace(req.ProductInfo)
	if productInfo == "" {
		productInfo = p.productInfo
	}

	hash := p.requestHash(txnid, amount, productInfo, req.Customer.Name, req.Customer.Email)

	surl := req.SuccessURL
	if surl == "" {
		surl = p.successURL
	}
	furl := req.FailureURL
	if furl == "" {
		furl = p.failureURL
	}

	fields := map[string]string{
		"key":         p.merchantKey,
		"txnid":       txnid,
		"amount":      amount,
		"productinfo": productInfo,
		"firstname":   req.Customer.Name,
		"email":       req.Customer.Email,
		"phone":       req.Customer.Phone,
		"surl":        fmt.Sprintf("%s?order_id=%s", surl, orderID),
		"furl":        fmt.Sprintf("%s?order_id=%s", furl, orderID),
		"hash":        hash,
	}

	p.logger(ctx, "payments.payu.checkout.created", map[string]any{
		"txnid":   txnid,
		"orderId": orderID,
		"amount":  amount,
	})

	return Checkout{
		Provider:      "pay_u",
		TransactionID: txnid,
		RedirectURL:   p.paymentURL,
		FormFields:    fields,
		ExpiresAt:     now.Add(30 * time.Minute),
	}, nil
}

// VerifyNotification checks the reverse hash of a webhook post. A mismatch
// is a fraud signal: ErrIntegrityMismatch is returned and nothing else may
// act on the notification.
func (p *PayUProvider) VerifyNotification(ctx context.Context, n Notification) (Confirmation, error) {
	if p == nil {
		return Confirmation{}, errors.New("payu: provider is nil")
	}
	get := func(key string) string { return strings.TrimSpace(n.Params[key]) }

	txnid := get("txnid")
	received := get("hash")
	if txnid == "" || received == "" {
		return Confirmation{}, fmt.Errorf("%w: missing txnid or hash", ErrIntegrityMismatch)
	}

	expected := p.responseHash(
		get("status"), txnid, get("amount"), get("productinfo"), get("firstname"), get("email"),
		get("udf1"), get("udf2"), get("udf3"), get("udf4"), get("udf5"),
	)
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(received)), []byte(expected)) != 1 {
		p.logger(ctx, "payments.payu.notification.integrity_mismatch", map[string]any{
			"txnid":    txnid,
			"received": hashPrefix(received),
			"expected": hashPrefix(expected),
		})
		return Confirmation{}, ErrIntegrityMismatch
	}

	orderID, err := OrderIDFromPayUTransactionID(txnid)
	if err != nil {
		return Confirmation{}, err
	}

	payuStatus := strings.ToLower(get("status"))
	status := StatusPending
	switch payuStatus {
	case payuStatusSuccess:
		status = StatusSucceeded
	case payuStatusFailure, "failed":
		status = StatusFailed
	}

	p.logger(ctx, "payments.payu.notification.verified", map[string]any{
		"txnid":   txnid,
		"orderId": orderID,
		"status":  payuStatus,
	})

	return Confirmation{
		Provider:      "pay_u",
		TransactionID: txnid,
		OrderID:       orderID,
		Status:        status,
		Amount:        get("amount"),
		Raw:           n.Params,
	}, nil
}

// Refund acknowledges the refund request for manual settlement. The hosted
// form integration has no server-to-server refund API credentialed here, so
// the refund is recorded as pending for the operations team.
func (p *PayUProvider) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if p == nil {
		return RefundResult{}, errors.New("payu: provider is nil")
	}
	if strings.TrimSpace(req.TransactionID) == "" {
		return RefundResult{}, errors.New("payu: transaction id is required")
	}
	p.logger(ctx, "payments.payu.refund.requested", map[string]any{
		"txnid":  req.TransactionID,
		"reason": req.Reason,
	})
	return RefundResult{
		Provider: "pay_u",
		RefundID: "payu_manual_" + req.TransactionID,
		Status:   StatusPending,
	}, nil
}

// requestHash signs the outbound checkout form:
// key|txnid|amount|productinfo|firstname|email||||||||||salt
func (p *PayUProvider) requestHash(txnid, amount, productInfo, firstname, email string) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s||||||||||%s",
		p.merchantKey, txnid, amount, productInfo, firstname, email, p.salt)
	return sha512Hex(payload)
}

// responseHash verifies the inbound webhook:
// salt|status|txnid|amount|productinfo|firstname|email|udf1|udf2|udf3|udf4|udf5
func (p *PayUProvider) responseHash(status, txnid, amount, productInfo, firstname, email string, udfs ...string) string {
	fields := append([]string{p.salt, status, txnid, amount, productInfo, firstname, email}, udfs...)
	return sha512Hex(strings.Join(fields, "|"))
}

func sha512Hex(payload string) string {
	sum := sha512.Sum512([]byte(payload))
	return hex.EncodeToString(sum[:])
}

func hashPrefix(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
