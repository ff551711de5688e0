// Package inbox holds submitted clip requests before admission. Each tenant
// gets a FIFO; the admission loop drains at most one submission per tenant per
// tick so no tenant can starve the others.
package inbox
