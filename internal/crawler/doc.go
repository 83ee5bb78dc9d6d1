// Package crawler holds the vocabulary shared by every stage of a site crawl:
// requests, frontier entries, page results, fetch and extraction contracts,
// URL normalization and the retry policy used around fetches.
package crawler
