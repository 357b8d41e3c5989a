// Package rules holds the governance rules consulted by plugins at call
// time: flow control limits, routing rules and static tags.
//
// # Rule Documents
//
// Rules are written as a single YAML document:
//
//	version: "2026-03-01"
//	flow_control:
//	  - name: lookup-qps
//	    method: "inventory.Service#Lookup"
//	    qps: 50
//	    burst: 10
//	    max_concurrent: 8
//	    behavior: skip
//	    fallback: "unavailable"
//	routes:
//	  - name: canary
//	    method: "inventory.Service#*"
//	    match: {lane: canary}
//	    targets: {version: v2}
//	tags:
//	  region: eu-west-1
//
// # Store and Sources
//
// A Store holds the active document. Readers call Current on every
// invocation; it is a single atomic load. Sources feed the store:
//
//   - FileSource reads a local file and reloads it on change (fsnotify)
//   - GitSource clones a repository and pulls it on an interval (go-git)
//
// A document that fails to parse or validate is rejected and the previous
// document stays active.
package rules
