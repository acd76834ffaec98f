// Package vendors implements tracker.Vendor on top of the vendors' server-side
// collection APIs: the GA4 Measurement Protocol and Umami's send endpoint.
// Baidu Tongji has no server-side collection API and is script-only.
package vendors
