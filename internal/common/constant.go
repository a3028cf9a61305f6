package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// VerificationCodeDigits is the length of numeric verification codes.
const VerificationCodeDigits = 6
