// Package apiclient is the HTTP client for the classification backend.
//
// The backend exposes three endpoints: POST /predict (multipart upload, field
// "file") returning {class, confidence, probabilities}; GET /history returning
// {items: [...]}; and DELETE /history. Response shapes are decoded verbatim;
// field precedence between alternate keys is applied by the reconcile package.
package apiclient
