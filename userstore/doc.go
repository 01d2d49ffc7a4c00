// Package userstore groups the authkeep.UserStore implementations.
//
// memory keeps records in process and is meant for tests and local runs.
// postgres stores them in the sys_user and user_role tables.
package userstore
