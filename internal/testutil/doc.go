// Package testutil holds fixtures shared by package tests: the blog entity
// graph, its serializer declarations and rows, and deterministic request
// id generators.
package testutil
