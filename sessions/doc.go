// Package sessions is the bookkeeping core of reportproxy.  A Session bridges
// one producer connection (the process generating a report) to zero or more
// observer queues (viewers watching that report), keyed by report name.
//
//     producer ---> [ Registry: name -> Session ] ---> queue ---> viewer
//                                                 \--> queue ---> viewer
//
// The Registry creates and replaces sessions, arms a grace period for each new
// one, fans producer messages out to every attached queue and removes a
// session as soon as it has no observers, no live producer and is past its
// grace period.  When the last session goes away the Registry fires its
// shutdown callback, exactly once.
//
// Transport concerns (websockets, routing, message encoding) live in
// package wsproxy.
package sessions
