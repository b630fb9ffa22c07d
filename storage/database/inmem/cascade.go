package inmemdb

import "github.com/volatiletech/null/v8"

// The helpers below mirror the ON DELETE rules of the migrations. Callers hold the write lock.

func (db *DB) deleteSchool(id string) {
	delete(db.schools, id)
	for mid, m := range db.members {
		if m.SchoolID == id {
			db.deleteMember(mid)
		}
	}
	for cid, c := range db.courses {
		if c.SchoolID == id {
			db.deleteCourse(cid)
		}
	}
	for lid, l := range db.lessons {
		if l.SchoolID == id {
			db.deleteLesson(lid)
		}
	}
}

func (db *DB) deleteMember(id string) {
	delete(db.members, id)
	for cid, c := range db.courses {
		if c.InstructorID.Valid && c.InstructorID.String == id {
			c.InstructorID = null.String{}
			db.courses[cid] = c
		}
	}
	for rid, r := range db.reviews {
		if r.StudentID == id {
			delete(db.reviews, rid)
		}
	}
	for eid, e := range db.enrollments {
		if e.StudentID == id {
			delete(db.enrollments, eid)
		}
	}
	for pid, p := range db.progress {
		if p.StudentID == id {
			delete(db.progress, pid)
		}
	}
	for cid, c := range db.certificates {
		if c.StudentID == id {
			delete(db.certificates, cid)
		}
	}
	for aid, a := range db.attempts {
		if a.StudentID == id {
			db.deleteAttempt(aid)
		}
	}
}

func (db *DB) deleteCourse(id string) {
	delete(db.courses, id)
	for sid, s := range db.subjects {
		if s.CourseID == id {
			db.deleteSubject(sid)
		}
	}
	for rid, r := range db.reviews {
		if r.CourseID == id {
			delete(db.reviews, rid)
		}
	}
	for eid, e := range db.enrollments {
		if e.CourseID == id {
			delete(db.enrollments, eid)
		}
	}
	for pid, p := range db.progress {
		if p.CourseID == id {
			delete(db.progress, pid)
		}
	}
	for cid, c := range db.certificates {
		if c.CourseID == id {
			delete(db.certificates, cid)
		}
	}
	for aid, a := range db.assessments {
		if a.CourseID == id {
			db.deleteAssessment(aid)
		}
	}
}

func (db *DB) deleteSubject(id string) {
	delete(db.subjects, id)
	for link := range db.subjectLessons {
		if link[0] == id {
			delete(db.subjectLessons, link)
		}
	}
	for aid, a := range db.assessments {
		if a.SubjectID.Valid && a.SubjectID.String == id {
			a.SubjectID = null.String{}
			db.assessments[aid] = a
		}
	}
}

func (db *DB) deleteLesson(id string) {
	delete(db.lessons, id)
	for link := range db.subjectLessons {
		if link[1] == id {
			delete(db.subjectLessons, link)
		}
	}
	for vid, v := range db.videos {
		if v.LessonID == id {
			delete(db.videos, vid)
		}
	}
	for pid, p := range db.progress {
		if p.LessonID == id {
			delete(db.progress, pid)
		}
	}
}

func (db *DB) deleteAssessment(id string) {
	delete(db.assessments, id)
	for qid, q := range db.questions {
		if q.AssessmentID == id {
			db.deleteQuestion(qid)
		}
	}
	for aid, a := range db.attempts {
		if a.AssessmentID == id {
			db.deleteAttempt(aid)
		}
	}
}

func (db *DB) deleteQuestion(id string) {
	delete(db.questions, id)
	for cid, c := range db.choices {
		if c.QuestionID == id {
			db.deleteChoice(cid)
		}
	}
	for aid, a := range db.answers {
		if a.QuestionID == id {
			delete(db.answers, aid)
		}
	}
}

func (db *DB) deleteChoice(id string) {
	delete(db.choices, id)
	for aid, a := range db.answers {
		if a.ChoiceID.Valid && a.ChoiceID.String == id {
			a.ChoiceID = null.String{}
			db.answers[aid] = a
		}
	}
}

func (db *DB) deleteAttempt(id string) {
	delete(db.attempts, id)
	for aid, a := range db.answers {
		if a.AttemptID == id {
			delete(db.answers, aid)
		}
	}
}
