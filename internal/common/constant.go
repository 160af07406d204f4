package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// AddedByWebRegistration marks allow-list records provisioned by the
// web registration flow.
const AddedByWebRegistration = "web_registration"
