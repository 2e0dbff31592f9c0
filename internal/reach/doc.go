// Package reach indexes which object introduced which other object into
// reachability during a single collection pass.
//
// The host collector reports one edge per discovered object, parents before
// children. The first report for an identity wins and fixes its provenance:
// the kind of edge, its label and the node it came from. Once a watched
// object is indexed its chain back to a root can be written out.
//
// Nodes live in an arena owned by the Index; parents are arena indexes, so a
// Clear between passes drops everything at once.
package reach
