// Package html turns saved web pages and HTML booking confirmations into
// plain text.
//
// Short pages, such as a hotel confirmation, are rendered node by node so
// that table rows survive as "cell | cell" lines. Long pages are first run
// through go-readability to drop navigation and boilerplate around the
// article body.
package html
