package apperr

import (
	"golang.org/x/text/language"
)

// Machine codes. Each one has a catalog entry below.
const (
	CodeInternal          = "internal_error"
	CodeGateway           = "gateway_error"
	CodeInvalidRequest    = "invalid_request"
	CodeUnauthenticated   = "unauthenticated"
	CodeRoleForbidden     = "role_forbidden"
	CodeNotOrderOwner     = "not_order_owner"
	CodeNotOrderVendor    = "not_order_vendor"
	CodeOrderNotFound     = "order_not_found"
	CodeLinkNotFound      = "payment_link_not_found"
	CodeBillNotFound      = "bill_not_found"
	CodePackageNotFound   = "package_not_found"
	CodeOrderNotPayable   = "order_not_payable"
	CodeOrderAlreadyPaid  = "order_already_paid"
	CodePaymentNotPending = "payment_not_pending"
	CodeInvalidTransition = "invalid_transition"
	CodeMethodLocked      = "payment_method_locked"
	CodeReviewExists      = "review_exists"
	CodeBillExists        = "bill_exists"
	CodePeriodOpen        = "period_open"
	CodeInvalidSignature  = "invalid_signature"
	CodeUnknownOrderCode  = "unknown_order_code"
)

var supported = []language.Tag{language.Vietnamese, language.English}

var matcher = language.NewMatcher(supported)

var catalog = map[string][2]string{
	CodeInternal:          {"Đã xảy ra lỗi, vui lòng thử lại sau", "Something went wrong, please try again later"},
	CodeGateway:           {"Cổng thanh toán đang gặp sự cố", "The payment gateway is unavailable"},
	CodeInvalidRequest:    {"Dữ liệu yêu cầu không hợp lệ", "The request is invalid"},
	CodeUnauthenticated:   {"Vui lòng đăng nhập", "Please sign in"},
	CodeRoleForbidden:     {"Bạn không có quyền thực hiện thao tác này", "You are not allowed to do this"},
	CodeNotOrderOwner:     {"Đơn hàng không thuộc về bạn", "This order does not belong to you"},
	CodeNotOrderVendor:    {"Đơn hàng không thuộc cửa hàng của bạn", "This order does not belong to your store"},
	CodeOrderNotFound:     {"Không tìm thấy đơn hàng", "Order not found"},
	CodeLinkNotFound:      {"Không tìm thấy liên kết thanh toán", "Payment link not found"},
	CodeBillNotFound:      {"Không tìm thấy hóa đơn", "Bill not found"},
	CodePackageNotFound:   {"Không tìm thấy gói dịch vụ", "Package not found"},
	CodeOrderNotPayable:   {"Đơn hàng chưa thể thanh toán bằng mã QR", "This order cannot be paid by QR code yet"},
	CodeOrderAlreadyPaid:  {"Đơn hàng đã được thanh toán", "This order is already paid"},
	CodePaymentNotPending: {"Thanh toán không còn ở trạng thái chờ", "The payment is no longer pending"},
	CodeInvalidTransition: {"Không thể chuyển trạng thái đơn hàng", "The order cannot move to that status"},
	CodeMethodLocked:      {"Không thể đổi phương thức thanh toán", "The payment method can no longer be changed"},
	CodeReviewExists:      {"Đơn hàng đã được đánh giá", "This order has already been reviewed"},
	CodeBillExists:        {"Hóa đơn cho kỳ này đã tồn tại", "A bill for this period already exists"},
	CodePeriodOpen:        {"Kỳ thanh toán chưa kết thúc", "The billing period has not ended yet"},
	CodeInvalidSignature:  {"Chữ ký không hợp lệ", "Invalid signature"},
	CodeUnknownOrderCode:  {"Mã đơn thanh toán không tồn tại", "Unknown order code"},
}

// Localize renders the catalog message for code in the best language for an
// Accept-Language header value. Vietnamese is the fallback.
func Localize(code, acceptLanguage string) string {
	entry, ok := catalog[code]
	if !ok {
		entry = catalog[CodeInternal]
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return entry[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return entry[0]
	}
	return entry[idx]
}
