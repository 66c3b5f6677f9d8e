package db

// AnonymousSentinel is the ReportedByID used for unauthenticated citizen
// reports: a fixed, well-known UUID standing in for the absence of a row
// in the users table.
const AnonymousSentinel = "00000000-0000-0000-0000-000000000000"
