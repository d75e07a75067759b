package listing

import "github.com/nimburion/listing/pkg/repository/document"

// principalSecrets are never returned by a listing of users.
var principalSecrets = []string{"password", "refreshToken", "emailVerificationToken", "resetPasswordToken"}

// Catalog returns the built-in entity definitions.
func Catalog() []Definition {
	return []Definition{
		{
			Namespace:   "tasks",
			Collection:  "tasks",
			Searchable:  []string{"title", "description", "status", "priority"},
			Sortable:    []string{"title", "status", "priority", "startDate", "dueDate", "createdAt"},
			DefaultSort: "title",
			Joins: []Join{
				{From: "projects", LocalField: "associatedProject", ForeignField: document.IDField, As: "projectDetails", Flatten: true},
				{From: "users", LocalField: "assignee", ForeignField: document.IDField, As: "assigneeDetails", Flatten: true},
				{From: "users", LocalField: "assigner", ForeignField: document.IDField, As: "assignerDetails", Flatten: true},
				// comments stay an array so a task with many comments is still one row
				{From: "comments", LocalField: document.IDField, ForeignField: "taskId", As: "commentDetails"},
			},
			Include: []string{
				"title", "description", "status", "priority", "startDate", "dueDate", "createdAt",
				"projectDetails.name", "projectDetails.description",
				"assigneeDetails.fullName", "assigneeDetails.userName", "assigneeDetails.email",
				"assignerDetails.fullName", "assignerDetails.userName", "assignerDetails.email",
				"commentDetails._id", "commentDetails.content", "commentDetails.author",
			},
		},
		{
			Namespace:  "projects",
			Collection: "projects",
			Searchable: []string{
				"name", "description",
				"createdByUserDetails.fullName", "createdByUserDetails.email",
				"createdByUserDetails.role", "createdByUserDetails.userName",
			},
			Sortable:    []string{"name", "clientName", "createdAt"},
			DefaultSort: "name",
			Joins: []Join{
				{From: "tasks", LocalField: "associatedTask", ForeignField: document.IDField, As: "taskDetails"},
				{From: "users", LocalField: "createdBy", ForeignField: document.IDField, As: "createdByUserDetails", Flatten: true},
			},
			Include: []string{
				"name", "description", "clientName", "createdAt", "taskDetails",
				"createdByUserDetails.fullName", "createdByUserDetails.email",
				"createdByUserDetails.role", "createdByUserDetails.userName",
			},
		},
		{
			Namespace:  "users",
			Collection: "users",
			Searchable: []string{
				"userName", "email", "fullName",
				"designationDetails.department", "designationDetails.designation",
				"designationDetails.contact_address",
			},
			Sortable:    []string{"userName", "email", "fullName", "createdAt"},
			DefaultSort: "userName",
			BaseFilter:  document.Filter{"role": "employee"},
			Joins: []Join{
				{From: "designations", LocalField: document.IDField, ForeignField: "user", As: "designationDetails", Flatten: true},
			},
			Exclude: principalSecrets,
		},
		{
			Namespace:   "comments",
			Collection:  "comments",
			Searchable:  []string{"content", "authorDetails.userName", "authorDetails.email"},
			Sortable:    []string{"content", "createdAt"},
			DefaultSort: "content",
			Joins: []Join{
				{From: "users", LocalField: "author", ForeignField: document.IDField, As: "authorDetails", Flatten: true},
			},
			Include: []string{
				"content", "createdAt", "taskId",
				"authorDetails.userName", "authorDetails.email", "authorDetails.fullName",
			},
		},
	}
}
