package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Status string

const (
	StatusPlanning   Status = "Planning"
	StatusInProgress Status = "In Progress"
	StatusTesting    Status = "Testing"
	StatusCompleted  Status = "Completed"
	StatusOnHold     Status = "On Hold"
)

var Statuses = []Status{StatusPlanning, StatusInProgress, StatusTesting, StatusCompleted, StatusOnHold}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Post is a project idea. Team and Bookmarks hold user ids with set semantics.
type Post struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title          string             `bson:"title" json:"title"`
	Description    string             `bson:"description" json:"description"`
	CreatedBy      string             `bson:"createdBy" json:"createdBy"`
	CreatedByEmail string             `bson:"createdByEmail,omitempty" json:"createdByEmail,omitempty"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt,omitempty" json:"updatedAt"`
	Team           []string           `bson:"team" json:"team"`
	Deadline       string             `bson:"deadline,omitempty" json:"deadline,omitempty"`
	Contact        string             `bson:"contact,omitempty" json:"contact,omitempty"`
	Status         Status             `bson:"status,omitempty" json:"status"`
	Milestones     []Milestone        `bson:"milestones" json:"milestones"`
	Tags           []string           `bson:"tags" json:"tags"`
	SkillsNeeded   []string           `bson:"skills_needed" json:"skillsNeeded"`
	Bookmarks      []string           `bson:"bookmarks" json:"bookmarks"`
	Tasks          []Task             `bson:"tasks" json:"tasks"`
	Version        int64              `bson:"version" json:"version"`
}

type Milestone struct {
	Name        string `bson:"name" json:"name"`
	Description string `bson:"description" json:"description"`
	Completed   bool   `bson:"completed" json:"completed"`
	Progress    int    `bson:"progress" json:"progress"`
}

type Task struct {
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description" json:"description"`
	AssignedTo  string `bson:"assigned_to,omitempty" json:"assignedTo,omitempty"`
	DueDate     string `bson:"due_date,omitempty" json:"dueDate,omitempty"`
	Completed   bool   `bson:"completed" json:"completed"`
}

// Normalize fills defaults for fields that older documents may lack.
func (p *Post) Normalize() {
	if p.Status == "" {
		p.Status = StatusPlanning
	}
	if p.Team == nil {
		p.Team = []string{}
	}
	if p.Milestones == nil {
		p.Milestones = []Milestone{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.SkillsNeeded == nil {
		p.SkillsNeeded = []string{}
	}
	if p.Bookmarks == nil {
		p.Bookmarks = []string{}
	}
	if p.Tasks == nil {
		p.Tasks = []Task{}
	}
}

func (p *Post) IsMember(uid string) bool {
	return contains(p.Team, uid)
}

func (p *Post) IsBookmarkedBy(uid string) bool {
	return contains(p.Bookmarks, uid)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
