// Package harness runs query-count scenarios against declared serializers.
//
// The harness compiles a directory of CUE declarations, seeds an isolated
// in-memory database with fixture rows, and evaluates assertions about the
// select trees and statements the serializers produce.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: blog_includes
//	description: "Blogs render with one query per association level"
//	specs: ../specs/blog
//	fixtures:
//	  blogs:
//	    - { id: 1, title: "Blog 1" }
//	  posts:
//	    - { id: 1, blog_id: 1, title: "Post 1" }
//	assertions:
//	  - type: plan
//	    serializer: BlogSerializer
//	    select:
//	      "": ["*"]
//	      posts: ["id", "blog_id", "title", "author_name"]
//	  - type: query_count
//	    serializer: BlogSerializer
//	    count: 3
//	  - type: verify
//	    serializer: PostSerializer
//	  - type: render
//	    serializer: BlogSerializer
//	    expect: [{ id: 1, title: "Blog 1", posts: [] }]
//	  - type: statement_contains
//	    serializer: BlogSerializer
//	    contains: ["posts.author_first_name || ' ' || posts.author_last_name"]
//
// # Assertion Types
//
//   - plan: Builds the serializer's select tree and compares the select
//     list of each level, keyed by include path ("" is the root)
//   - query_count: Renders every entity record as a collection and checks
//     the number of statements issued
//   - verify: Runs the serializer query test; expect_error names the
//     failure kind when the check should fail
//   - render: Compares the rendered collection with expected values
//   - statement_contains: Checks that the collection statements contain
//     each fragment
//
// # Deterministic Testing
//
// Every scenario runs in a fresh in-memory SQLite database, with request
// ids drawn from a sequence generator. Statements are recorded in order, so
// the canonical plans and statements can be compared with golden files.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/blog.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(ctx, scenario)
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
